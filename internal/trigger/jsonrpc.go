package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// maxRetryAfter caps how long a plugin's Retry-After header can stall a delivery.
const maxRetryAfter = 30 * time.Second

// ErrPermanent marks delivery failures that retrying cannot fix: the plugin
// rejected the request or answered with something that is not a JSON-RPC
// response to it.
var ErrPermanent = errors.New("permanent delivery failure")

// JSONRPCRequest is a JSON-RPC 2.0 request. Method is the event name.
type JSONRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  Event             `json:"method"`
	Params  UploadEventParams `json:"params"`
	ID      int64             `json:"id"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// UploadEventParams is the notification payload sent to plugins.
type UploadEventParams struct {
	Event      Event     `json:"event"`
	UploadID   string    `json:"upload_id"`
	OwnerID    string    `json:"owner_id"`
	FileName   string    `json:"file_name"`
	RowCount   int       `json:"row_count"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DeliveryKey identifies one event for one upload. It is sent as the
// Idempotency-Key header so plugins can drop retried duplicates.
func (p UploadEventParams) DeliveryKey() string {
	return p.UploadID + ":" + string(p.Event)
}

// Delivery is the outcome of a successful exchange with a plugin.
type Delivery struct {
	Response *JSONRPCResponse
	Attempts int
}

// RPCClient delivers upload events to plugins as JSON-RPC 2.0 calls over
// HTTP. Network errors, 5xx, 408 and 429 are retried with exponential
// backoff; any other 4xx is permanent.
type RPCClient struct {
	httpClient *http.Client
	nextID     atomic.Int64
	maxRetries int
	baseDelay  time.Duration
}

// NewRPCClient creates a client with the given retry settings and timeout.
func NewRPCClient(maxRetries int, baseDelay time.Duration, timeout time.Duration) *RPCClient {
	return &RPCClient{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Deliver sends params to endpoint with the event name as the method.
func (c *RPCClient) Deliver(ctx context.Context, endpoint string, params UploadEventParams) (*Delivery, error) {
	if _, err := ParseEvent(string(params.Event)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	id := c.nextID.Add(1)
	data, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  params.Event,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, wait, err := c.post(ctx, endpoint, params.DeliveryKey(), id, data)
		if err == nil {
			return &Delivery{Response: resp, Attempts: attempt + 1}, nil
		}
		if errors.Is(err, ErrPermanent) {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxRetries {
			delay := max(c.baseDelay<<attempt, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("delivery failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// post makes one attempt. wait is the plugin's requested Retry-After, if any.
func (c *RPCClient) post(ctx context.Context, endpoint, key string, id int64, data []byte) (*JSONRPCResponse, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: create request: %w", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("plugin answered %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("%w: unexpected status %d: %s", ErrPermanent, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, 0, fmt.Errorf("%w: unmarshal rpc response: %w", ErrPermanent, err)
	}
	if rpcResp.ID != id {
		return nil, 0, fmt.Errorf("%w: response id %d does not match request id %d", ErrPermanent, rpcResp.ID, id)
	}
	return &rpcResp, 0, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
