package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/api"
	"github.com/famgate/famgate/pkg/api/auth"
	"github.com/famgate/famgate/pkg/audit"
	"github.com/famgate/famgate/pkg/config"
	"github.com/famgate/famgate/pkg/metadata/cache"
	"github.com/famgate/famgate/pkg/metadata/postgres"
	"github.com/famgate/famgate/pkg/metrics"
	"github.com/famgate/famgate/pkg/proxy/passthrough"
	pgproxy "github.com/famgate/famgate/pkg/proxy/postgres"
	redisproxy "github.com/famgate/famgate/pkg/proxy/redis"
	"github.com/famgate/famgate/pkg/service"
	"github.com/famgate/famgate/pkg/stats"
	"github.com/famgate/famgate/pkg/storage"
	"github.com/famgate/famgate/pkg/storage/local"
	"github.com/famgate/famgate/pkg/storage/s3"
	"github.com/famgate/famgate/pkg/validate"

	// Import prometheus metrics to register init() functions
	_ "github.com/famgate/famgate/pkg/metrics/prometheus"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the famgate gateway",
	Long: `Start the famgate gateway with the specified configuration.

The gateway runs in the foreground; use a process supervisor for daemon
deployments. Use --config to specify a custom configuration file, or it will
use the default location at $XDG_CONFIG_HOME/famgate/config.yaml.

Examples:
  # Start with default config location
  famgate start

  # Start with custom config file
  famgate start --config /etc/famgate/config.yaml

  # Start with environment variable overrides
  FAMGATE_LOGGING_LEVEL=DEBUG famgate start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("famgate - family storage gateway")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics FIRST (before creating components that use metrics)
	// This ensures metrics.IsEnabled() returns true when they are created
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Metadata store
	store, err := postgres.NewPostgresStore(ctx, cfg.Database, logger.With("component", "metadata"))
	if err != nil {
		return fmt.Errorf("failed to connect to metadata store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("Metadata store connected",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database)

	// Storage backend
	adapters := storage.NewRegistry()
	switch cfg.Storage.Type {
	case "local":
		localAdapter, err := local.New(cfg.Storage.Local, logger.With("component", "storage"))
		if err != nil {
			return fmt.Errorf("failed to create local storage adapter: %w", err)
		}
		adapters.Register(localAdapter)
	case "object":
		s3Adapter, err := s3.NewFromConfig(ctx, cfg.Storage.Object, logger.With("component", "storage"))
		if err != nil {
			return fmt.Errorf("failed to create object storage adapter: %w", err)
		}
		adapters.Register(s3Adapter)
	}
	if err := adapters.SetActive(cfg.Storage.Type); err != nil {
		return fmt.Errorf("failed to select storage backend: %w", err)
	}
	logger.Info("Storage backend configured", "type", cfg.Storage.Type)

	// Metadata cache, validation ruleset, stats engine, orchestrator
	metadataCache := cache.New(cache.Config{
		FileTTL:   cfg.Cache.FileTTL,
		SearchTTL: cfg.Cache.SearchTTL,
		ListTTL:   cfg.Cache.ListTTL,
	})
	validator := validate.New(validate.Config{
		MaxFileSize:       int64(cfg.Storage.MaxFileSize),
		AllowedExtensions: cfg.Storage.AllowedExtensions,
		AllowedMIMETypes:  cfg.Storage.AllowedMIMETypes,
	})
	engine := stats.NewEngine(store, logger.With("component", "stats"))
	svc := service.New(validator, store, metadataCache, adapters, engine, logger.With("component", "service"))

	// Every runnable component reports through runDone.
	var wg sync.WaitGroup
	runDone := make(chan error, 8)

	// REST API server
	if cfg.API.IsEnabled() {
		jwtService, err := auth.NewJWTService(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to create JWT service: %w", err)
		}

		apiServer := api.NewServer(cfg.API, api.Deps{
			Service:  svc,
			JWT:      jwtService,
			Store:    store,
			Adapters: adapters,
		})
		logger.Info("API server enabled", "port", apiServer.Port())

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil {
				runDone <- fmt.Errorf("api server: %w", err)
			}
		}()
	} else {
		logger.Info("API server disabled")
	}

	// Wire-protocol proxies share one audit trail and one metrics sink
	recorder := audit.Tee(
		audit.NewLogRecorder(logger.With("component", "audit")),
		audit.NewMetricsRecorder(metrics.NewProxyMetrics()),
	)

	type runnable interface {
		Serve(ctx context.Context) error
		Protocol() string
	}
	var proxies []runnable

	if cfg.Proxy.Postgres.Enabled {
		proxies = append(proxies, pgproxy.New(pgproxy.Config{
			Listen:       cfg.Proxy.Postgres.Listen,
			Backend:      cfg.Proxy.Postgres.Backend,
			DenyPatterns: cfg.Proxy.Postgres.DenyPatterns,
		}, recorder))
	}
	if cfg.Proxy.MySQL.Enabled {
		proxies = append(proxies, passthrough.New("mysql", passthrough.Config{
			Listen:  cfg.Proxy.MySQL.Listen,
			Backend: cfg.Proxy.MySQL.Backend,
		}, recorder))
	}
	if cfg.Proxy.Mongo.Enabled {
		proxies = append(proxies, passthrough.New("mongo", passthrough.Config{
			Listen:  cfg.Proxy.Mongo.Listen,
			Backend: cfg.Proxy.Mongo.Backend,
		}, recorder))
	}
	if cfg.Proxy.Redis.Enabled {
		proxies = append(proxies, redisproxy.New(redisproxy.Config{
			Listen:  cfg.Proxy.Redis.Listen,
			Backend: cfg.Proxy.Redis.Backend,
		}, recorder))
	}

	for _, p := range proxies {
		logger.Info("Proxy enabled", "protocol", p.Protocol())
		wg.Add(1)
		go func(p runnable) {
			defer wg.Done()
			if err := p.Serve(ctx); err != nil {
				runDone <- fmt.Errorf("%s proxy: %w", p.Protocol(), err)
			}
		}(p)
	}

	// Wait for interrupt signal or component failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Gateway is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
	case runErr = <-runDone:
		signal.Stop(sigChan)
		logger.Error("Component failed, shutting down", "error", runErr)
		cancel()
	}

	wg.Wait()

	// Surface any error that raced with the shutdown
	select {
	case err := <-runDone:
		if runErr == nil {
			runErr = err
		}
	default:
	}

	if runErr != nil {
		logger.Error("Gateway stopped with error", "error", runErr)
		return runErr
	}
	logger.Info("Gateway stopped gracefully")
	return nil
}
