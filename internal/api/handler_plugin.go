package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
)

// --- Huma Input/Output types ---

type RegisterPluginBody struct {
	Name             string   `json:"name" doc:"Plugin name" required:"true" minLength:"1"`
	Endpoint         string   `json:"endpoint" doc:"JSON-RPC endpoint URL" required:"true" minLength:"1"`
	SubscribedEvents []string `json:"subscribed_events" doc:"upload.processed, upload.failed or upload.deleted" required:"true" minItems:"1"`
}

type RegisterPluginInput struct {
	Body RegisterPluginBody
}

type PluginResponse struct {
	ID               uuid.UUID       `json:"id" doc:"Plugin UUID"`
	Name             string          `json:"name" doc:"Plugin name"`
	Endpoint         string          `json:"endpoint" doc:"JSON-RPC endpoint URL"`
	SubscribedEvents []trigger.Event `json:"subscribed_events" doc:"Subscribed events"`
	Status           string          `json:"status" doc:"Plugin status" example:"active"`
	CreatedAt        time.Time       `json:"created_at" doc:"Creation timestamp"`
}

type RegisterPluginOutput struct {
	Body PluginResponse
}

type ListPluginsInput struct{}

type ListPluginsOutput struct {
	Body []PluginResponse
}

type GetPluginInput struct {
	PluginID string `path:"plugin_id" doc:"Plugin UUID"`
}

type GetPluginOutput struct {
	Body PluginResponse
}

type DeletePluginInput struct {
	PluginID string `path:"plugin_id" doc:"Plugin UUID"`
}

// --- Handler ---

type PluginHandler struct {
	registry *trigger.PluginRegistry
	logger   *slog.Logger
}

func NewPluginHandler(registry *trigger.PluginRegistry, logger *slog.Logger) *PluginHandler {
	return &PluginHandler{registry: registry, logger: logger}
}

func registerPluginRoutes(api huma.API, h *PluginHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-plugin",
		Method:        http.MethodPost,
		Path:          "/admin/plugins",
		Summary:       "Register an upload event plugin",
		Tags:          []string{"plugins"},
		DefaultStatus: http.StatusCreated,
	}, h.RegisterPlugin)

	huma.Register(api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/admin/plugins",
		Summary:     "List all plugins",
		Tags:        []string{"plugins"},
	}, h.ListPlugins)

	huma.Register(api, huma.Operation{
		OperationID: "get-plugin",
		Method:      http.MethodGet,
		Path:        "/admin/plugins/{plugin_id}",
		Summary:     "Get a plugin by ID",
		Tags:        []string{"plugins"},
	}, h.GetPlugin)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-plugin",
		Method:        http.MethodDelete,
		Path:          "/admin/plugins/{plugin_id}",
		Summary:       "Delete a plugin",
		Tags:          []string{"plugins"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeletePlugin)
}

func (h *PluginHandler) requireAdmin(ctx context.Context, op string) error {
	if _, err := auth.Require(ctx, auth.CapAdmin); err != nil {
		return httpError(h.logger, op, err)
	}
	return nil
}

func (h *PluginHandler) RegisterPlugin(ctx context.Context, input *RegisterPluginInput) (*RegisterPluginOutput, error) {
	if err := h.requireAdmin(ctx, "register plugin"); err != nil {
		return nil, err
	}
	if u, err := url.Parse(input.Body.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, huma.Error400BadRequest("endpoint must be an absolute URL")
	}

	events := make([]trigger.Event, 0, len(input.Body.SubscribedEvents))
	for _, s := range input.Body.SubscribedEvents {
		e, err := trigger.ParseEvent(s)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		events = append(events, e)
	}

	p := &trigger.Plugin{
		Name:             input.Body.Name,
		Endpoint:         input.Body.Endpoint,
		SubscribedEvents: events,
	}
	if err := h.registry.Register(ctx, p); err != nil {
		return nil, httpError(h.logger, "register plugin", err)
	}

	h.logger.Info("plugin registered", "id", p.ID, "name", p.Name, "endpoint", p.Endpoint)

	return &RegisterPluginOutput{Body: pluginToResponse(p)}, nil
}

func (h *PluginHandler) ListPlugins(ctx context.Context, input *ListPluginsInput) (*ListPluginsOutput, error) {
	if err := h.requireAdmin(ctx, "list plugins"); err != nil {
		return nil, err
	}
	plugins := h.registry.List()
	resp := make([]PluginResponse, len(plugins))
	for i, p := range plugins {
		resp[i] = pluginToResponse(p)
	}
	return &ListPluginsOutput{Body: resp}, nil
}

func (h *PluginHandler) GetPlugin(ctx context.Context, input *GetPluginInput) (*GetPluginOutput, error) {
	if err := h.requireAdmin(ctx, "get plugin"); err != nil {
		return nil, err
	}
	id, err := parseID(input.PluginID, "plugin_id")
	if err != nil {
		return nil, err
	}

	p, err := h.registry.Get(id)
	if err != nil {
		return nil, httpError(h.logger, "get plugin", err)
	}

	return &GetPluginOutput{Body: pluginToResponse(p)}, nil
}

func (h *PluginHandler) DeletePlugin(ctx context.Context, input *DeletePluginInput) (*struct{}, error) {
	if err := h.requireAdmin(ctx, "delete plugin"); err != nil {
		return nil, err
	}
	id, err := parseID(input.PluginID, "plugin_id")
	if err != nil {
		return nil, err
	}

	if err := h.registry.Delete(ctx, id); err != nil {
		return nil, httpError(h.logger, "delete plugin", err)
	}

	h.logger.Info("plugin deleted", "id", id)
	return nil, nil
}

func pluginToResponse(p *trigger.Plugin) PluginResponse {
	return PluginResponse{
		ID:               p.ID,
		Name:             p.Name,
		Endpoint:         p.Endpoint,
		SubscribedEvents: p.SubscribedEvents,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
	}
}
