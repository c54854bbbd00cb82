package trigger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ryanbastic/go-sheetviz/internal/metrics"
)

// Notifier dispatches upload events to subscribed plugins via JSON-RPC.
// Deliveries run on a context owned by the Notifier and end when Close
// gives up waiting for them.
type Notifier struct {
	registry  *PluginRegistry
	rpcClient *RPCClient
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier.
func NewNotifier(registry *PluginRegistry, rpcClient *RPCClient, logger *slog.Logger) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		registry:  registry,
		rpcClient: rpcClient,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Notify fires a goroutine per subscribed plugin. Errors are logged, not
// propagated, so uploads are never blocked by slow plugins. Events sent
// after Close are dropped.
func (n *Notifier) Notify(params UploadEventParams) {
	plugins := n.registry.ForEvent(params.Event)
	if len(plugins) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.logger.Warn("notifier closed, dropping event", "event", params.Event, "upload_id", params.UploadID)
		return
	}

	for _, p := range plugins {
		n.wg.Add(1)
		go n.deliver(p.Endpoint, p.Name, params)
	}
}

func (n *Notifier) deliver(endpoint, pluginName string, params UploadEventParams) {
	defer n.wg.Done()
	log := n.logger.With("plugin", pluginName, "endpoint", endpoint, "event", params.Event, "upload_id", params.UploadID)

	d, err := n.rpcClient.Deliver(n.ctx, endpoint, params)
	switch {
	case err != nil:
		metrics.ObservePluginDelivery(string(params.Event), metrics.DeliveryFailed)
		log.Error("plugin delivery failed", "error", err)
	case d.Response.Error != nil:
		metrics.ObservePluginDelivery(string(params.Event), metrics.DeliveryRPCError)
		log.Error("plugin returned error", "attempts", d.Attempts, "error", d.Response.Error)
	default:
		metrics.ObservePluginDelivery(string(params.Event), metrics.DeliveryOK)
		log.Debug("plugin notified", "attempts", d.Attempts)
	}
}

// Close stops accepting events and waits for in-flight deliveries. When ctx
// ends first, outstanding deliveries are cancelled and Close returns
// ctx.Err() once they have unwound.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return ctx.Err()
	}
}
