// Package trigger delivers upload lifecycle events to external plugins
// over JSON-RPC 2.0.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names an upload lifecycle transition plugins can subscribe to.
type Event string

const (
	EventUploadProcessed Event = "upload.processed"
	EventUploadFailed    Event = "upload.failed"
	EventUploadDeleted   Event = "upload.deleted"
)

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventUploadProcessed, EventUploadFailed, EventUploadDeleted:
		return e, nil
	}
	return "", fmt.Errorf("unknown event %q", s)
}

var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrPluginExists   = errors.New("plugin name already registered")
)

// PluginStatus represents the activation state of a plugin.
type PluginStatus string

const (
	PluginStatusActive   PluginStatus = "active"
	PluginStatusInactive PluginStatus = "inactive"
)

// Plugin is an external JSON-RPC service that receives upload events.
type Plugin struct {
	ID               uuid.UUID    `json:"id"`
	Name             string       `json:"name"`
	Endpoint         string       `json:"endpoint"`
	SubscribedEvents []Event      `json:"subscribed_events"`
	Status           PluginStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
}

// PluginRegistry is a thread-safe in-memory view of registered plugins,
// optionally written through to a PluginStore.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[uuid.UUID]*Plugin
	store   PluginStore
}

// NewPluginRegistry creates an empty registry. A nil store keeps plugins
// in memory only.
func NewPluginRegistry(store PluginStore) *PluginRegistry {
	return &PluginRegistry{plugins: make(map[uuid.UUID]*Plugin), store: store}
}

// LoadAll replaces the in-memory set with the plugins held by the store.
func (r *PluginRegistry) LoadAll(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	plugins, err := r.store.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[uuid.UUID]*Plugin, len(plugins))
	for _, p := range plugins {
		r.plugins[p.ID] = p
	}
	return nil
}

// Register adds a plugin. It assigns an ID and creation timestamp and
// rejects a name that is already taken.
func (r *PluginRegistry) Register(ctx context.Context, p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name == p.Name {
			return ErrPluginExists
		}
	}

	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = PluginStatusActive
	}
	if r.store != nil {
		if err := r.store.SavePlugin(ctx, p); err != nil {
			return err
		}
	}
	r.plugins[p.ID] = p
	return nil
}

// Get returns a plugin by ID.
func (r *PluginRegistry) Get(id uuid.UUID) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}

// List returns all registered plugins, oldest first.
func (r *PluginRegistry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Plugin) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Delete removes a plugin by ID.
func (r *PluginRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[id]; !ok {
		return ErrPluginNotFound
	}
	if r.store != nil {
		if err := r.store.DeletePlugin(ctx, id); err != nil {
			return err
		}
	}
	delete(r.plugins, id)
	return nil
}

// ForEvent returns all active plugins subscribed to the event.
func (r *PluginRegistry) ForEvent(e Event) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for _, p := range r.plugins {
		if p.Status != PluginStatusActive {
			continue
		}
		if slices.Contains(p.SubscribedEvents, e) {
			out = append(out, p)
		}
	}
	return out
}
