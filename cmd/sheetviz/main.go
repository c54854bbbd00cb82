package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ryanbastic/go-sheetviz/internal/api"
	"github.com/ryanbastic/go-sheetviz/internal/artifact"
	"github.com/ryanbastic/go-sheetviz/internal/auth"
	"github.com/ryanbastic/go-sheetviz/internal/circuitbreaker"
	"github.com/ryanbastic/go-sheetviz/internal/config"
	"github.com/ryanbastic/go-sheetviz/internal/insights"
	"github.com/ryanbastic/go-sheetviz/internal/metrics"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
	"github.com/ryanbastic/go-sheetviz/internal/trigger"
	"github.com/ryanbastic/go-sheetviz/internal/upload"
)

const usage = `usage: sheetviz <command> [flags]

commands:
  serve         run the HTTP server (default)
  migrate       apply database migrations and exit
  create-user   create an account: -username -password [-email] [-role user|admin]
`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	var err error
	switch cmd {
	case "serve":
		err = serve(cfg, logger)
	case "migrate":
		err = migrate(cfg, logger)
	case "create-user":
		err = createUser(cfg, logger, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

// connect opens the pool, checks connectivity and applies migrations.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	if err := storage.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations complete")
	return pool, nil
}

func migrate(cfg config.Config, logger *slog.Logger) error {
	pool, err := connect(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func createUser(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "password, at least 6 characters")
	email := fs.String("email", "", "contact address")
	role := fs.String("role", string(record.RoleUser), "user or admin")
	fs.Parse(args)

	ctx := context.Background()
	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := storage.NewPostgresStore(pool, cfg.QueryTimeout)
	svc := auth.NewService(store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), logger)
	u, err := svc.CreateUser(ctx, *username, *email, *password, record.Role(*role))
	if err != nil {
		return err
	}
	logger.Info("user created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return nil
}

func newArtifactStore(ctx context.Context, cfg config.Config) (artifact.Store, error) {
	switch cfg.ArtifactBackend {
	case "local":
		return artifact.NewLocalStore(cfg.UploadDir)
	case "s3":
		return artifact.NewS3Store(ctx, artifact.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
	}
	return nil, fmt.Errorf("unknown artifact backend %q (local, s3)", cfg.ArtifactBackend)
}

func serve(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	prometheus.MustRegister(metrics.NewPoolCollector(map[string]metrics.Stater{"postgres": pool}))

	store := storage.NewPostgresStore(pool, cfg.QueryTimeout)

	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("artifact store ready", "backend", cfg.ArtifactBackend)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := auth.NewService(store, tokens, logger)
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return err
		}
		logger.Info("admin account ensured", "username", cfg.AdminUsername)
	}

	// Upload event plugins
	plugins := trigger.NewPluginRegistry(trigger.NewPostgresPluginStore(pool, cfg.QueryTimeout))
	if err := plugins.LoadAll(ctx); err != nil {
		return err
	}
	logger.Info("plugins loaded", "count", len(plugins.List()))
	rpcClient := trigger.NewRPCClient(cfg.PluginRetryMax, cfg.PluginRetryBackoff, cfg.PluginRPCTimeout)
	notifier := trigger.NewNotifier(plugins, rpcClient, logger)

	uploads, err := upload.NewService(store, store, artifacts, logger, upload.Options{
		CacheSize: cfg.ChartCacheSize,
		Events:    notifier,
	})
	if err != nil {
		return err
	}

	breaker := circuitbreaker.New(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("insights circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	if cfg.OpenRouterAPIKey == "" {
		logger.Warn("OPENROUTER_API_KEY not set; insights requests will fail")
	}
	insightsClient := insights.NewClient(insights.Options{
		URL:     cfg.InsightsURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.InsightsModel,
		Timeout: cfg.InsightsTimeout,
		MaxRows: cfg.InsightsMaxRows,
	}, breaker)

	handler := api.NewServer(api.Deps{
		Logger:         logger,
		Tokens:         tokens,
		Auth:           authSvc,
		Uploads:        uploads,
		Insights:       insightsClient,
		Plugins:        plugins,
		Backends:       map[string]api.Pinger{"postgres": pool},
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	// In-flight plugin deliveries share the shutdown deadline.
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Warn("plugin deliveries cancelled at shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
