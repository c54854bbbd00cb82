package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/insights"
	"github.com/ryanbastic/go-sheetviz/internal/metrics"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

// Deps are the services the HTTP surface is built from.
type Deps struct {
	Logger         *slog.Logger
	Tokens         *auth.TokenIssuer
	Auth           *auth.Service
	Uploads        *upload.Service
	Insights       *insights.Client
	Plugins        *trigger.PluginRegistry
	Backends       map[string]Pinger
	MaxUploadBytes int64
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(d Deps) http.Handler {
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(d.Logger))
	mux.Use(Recovery(d.Logger))
	mux.Use(auth.Middleware(d.Tokens, d.Logger))
	mux.Use(rememberCaller)
	mux.Use(metrics.HTTP(callerRole))

	health := NewHealthHandler(d.Backends, d.Logger)
	mux.Get("/livez", health.Livez)
	mux.Get("/readyz", health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	cfg := huma.DefaultConfig("sheetviz", "1.0.0")
	// Response bodies carry only their documented fields; no $schema link.
	cfg.CreateHooks = nil
	api := humachi.New(mux, cfg)

	registerAuthRoutes(api, NewAuthHandler(d.Auth, d.Logger))
	registerUploadRoutes(api, NewUploadHandler(d.Uploads, d.MaxUploadBytes, d.Logger))
	registerInsightsRoutes(api, NewInsightsHandler(d.Insights, d.Uploads, d.Logger))
	registerAdminRoutes(api, NewAdminHandler(d.Uploads, d.Logger))
	registerPluginRoutes(api, NewPluginHandler(d.Plugins, d.Logger))

	return mux
}

func callerRole(ctx context.Context) string {
	if id, ok := auth.FromContext(ctx); ok {
		return string(id.Role)
	}
	return ""
}
