package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pullcheck/pullcheck/config"
	"github.com/pullcheck/pullcheck/internal/adapters/github"
	"github.com/pullcheck/pullcheck/internal/adapters/reaper"
	"github.com/pullcheck/pullcheck/internal/adapters/worker"
	"github.com/pullcheck/pullcheck/internal/analysis"
	"github.com/pullcheck/pullcheck/internal/core"
	"github.com/pullcheck/pullcheck/internal/data"
	"github.com/pullcheck/pullcheck/internal/service"
)

const shutdownWaitTimeout = 10 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Reviews *service.ReviewService
	Queue   core.JobQueue
	Store   core.ResultStore
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices builds the repositories and services backing all runtime modes.
func NewServices(deps *ServiceDeps) ServiceContainer {
	cfg := deps.Config

	queue := data.NewJobRepo(deps.DB, data.RepoConfig{
		RetryDelaySeconds: int(cfg.Worker.RetryDelay / time.Second),
		Logger:            deps.Logger,
	})

	store := data.NewReviewStore(data.ReviewStoreOptions{
		Client:    deps.RedisClient,
		CacheTTL:  cfg.Store.CacheTTL,
		RecordTTL: cfg.Store.RecordTTL,
	})

	reviews := service.MustNewReviewService(service.ReviewServiceOptions{
		Store:      store,
		Queue:      queue,
		Logger:     deps.Logger,
		MaxRetries: cfg.Worker.MaxRetries,
	})

	return ServiceContainer{
		Reviews: reviews,
		Queue:   queue,
		Store:   store,
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundServiceHandle tracks a background service goroutine for shutdown.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until a shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	errCh := make(chan error, len(enabled)+1)

	var (
		httpServer  *http.Server
		backgrounds []backgroundServiceHandle
	)

	if enabled[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	if enabled[config.ServiceModeWorker] {
		handle, startErr := startWorker(serviceCtx, cfg, logger, errCh)
		if startErr != nil {
			return startErr
		}
		backgrounds = append(backgrounds, handle)
	}

	if enabled[config.ServiceModeReaper] {
		handle, startErr := startReaper(serviceCtx, cfg, logger, errCh)
		if startErr != nil {
			return startErr
		}
		backgrounds = append(backgrounds, handle)
	}

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func startWorker(
	ctx context.Context,
	cfg *ServiceOrchestrationConfig,
	logger *slog.Logger,
	errCh chan<- error,
) (backgroundServiceHandle, error) {
	fetcher := github.NewClient(github.Options{
		BaseURL: cfg.Config.GitHub.APIBaseURL,
		Timeout: cfg.Config.GitHub.Timeout,
		Logger:  logger,
	})
	analyzer := analysis.NewAnalyzer(logger)

	runner, err := worker.NewRunner(worker.RunnerOptions{
		Store:    cfg.Services.Store,
		Queue:    cfg.Services.Queue,
		Fetcher:  fetcher,
		Analyzer: analyzer,
		Config:   cfg.Config.Worker,
		Logger:   logger,
	})
	if err != nil {
		return backgroundServiceHandle{}, fmt.Errorf("create worker runner: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- fmt.Errorf("worker runner: %w", runErr)
		}
	}()
	return backgroundServiceHandle{name: "worker", done: done}, nil
}

func startReaper(
	ctx context.Context,
	cfg *ServiceOrchestrationConfig,
	logger *slog.Logger,
	errCh chan<- error,
) (backgroundServiceHandle, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:     cfg.DB,
		Config: cfg.Config.Reaper,
		Logger: logger,
	})
	if err != nil {
		return backgroundServiceHandle{}, fmt.Errorf("create reaper runner: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- fmt.Errorf("reaper runner: %w", runErr)
		}
	}()
	return backgroundServiceHandle{name: "reaper", done: done}, nil
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: cfg.ctx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
