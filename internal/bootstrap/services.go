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

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/browser"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/classifier"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/observability/statsd"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/ports"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Unsubscribe *service.UnsubscribeOrchestrator
	Tasks       *service.TaskService
	StatusCache *core.StatusCacheService
	Verifier    ports.TokenVerifier

	// Browser holds the shared Chrome allocator backing the synchronous
	// attempt path. Nil when the HTTP server is disabled or the classifier
	// is not configured.
	Browser *browser.Provider

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB             *sql.DB
	Redis          redis.UniversalClient
	TaskRepo       *data.TaskRepo
	EmailRepo      *data.EmailRepo
	BatchJobRepo   *data.BatchJobRepo
	TaskResultRepo *data.TaskResultRepo
	CacheRepo      *data.RedisCacheRepo
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "emailsort",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	retryBase := 0
	if deps.Config != nil {
		retryBase = int(deps.Config.UnsubscribeRunner.RetryBaseDelay.Seconds())
	}

	return &serviceRepositories{
		DB:    deps.DB,
		Redis: deps.RedisClient,
		TaskRepo: data.NewTaskRepo(deps.DB, data.RepoConfig{
			RetryBaseSeconds: retryBase,
			Logger:           deps.Logger,
		}),
		EmailRepo:      data.NewEmailRepo(deps.DB, nil),
		BatchJobRepo:   data.NewBatchJobRepo(deps.DB, data.BatchJobRepoConfig{Logger: deps.Logger}),
		TaskResultRepo: data.NewTaskResultRepo(deps.DB, nil),
		CacheRepo:      data.NewRedisCacheRepo(deps.RedisClient),
	}
}

func newStatusCacheService(repos *serviceRepositories, cfg config.CacheConfig) *core.StatusCacheService {
	if repos.CacheRepo == nil {
		return nil
	}
	cacheCfg := core.DefaultStatusCacheConfig()
	if cfg.StatusTTL > 0 {
		cacheCfg.TTL = cfg.StatusTTL
	}
	return core.NewStatusCacheService(repos.CacheRepo, cacheCfg)
}

func newTaskService(repos *serviceRepositories, cfg *config.AppConfig, logger *slog.Logger) *service.TaskService {
	lease := 120 * time.Second
	if cfg != nil && cfg.UnsubscribeRunner.TaskLease > 0 {
		lease = cfg.UnsubscribeRunner.TaskLease
	}
	return service.MustNewTaskService(service.TaskServiceOptions{
		Repo:         repos.TaskRepo,
		DefaultLease: lease,
		Logger:       logger,
	})
}

// syncAttemptDeps holds the browser stack backing the synchronous batch path.
type syncAttemptDeps struct {
	provider *browser.Provider
	runner   service.AttemptRunner
}

// buildSyncAttemptRunner wires the browser provider, classifier, and attempt
// runner used by the synchronous batch endpoint. Returns an empty value when
// the classifier is not configured; the async path does not need it because
// workers carry their own browser stack.
func buildSyncAttemptRunner(cfg *config.AppConfig, logger *slog.Logger) syncAttemptDeps {
	if cfg == nil || !cfg.IsHTTPServerEnabled() {
		return syncAttemptDeps{}
	}

	pages, err := classifier.New(cfg.Classifier, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("synchronous unsubscribe path disabled: classifier not configured", "error", err)
		}
		return syncAttemptDeps{}
	}

	provider, err := browser.NewProvider(cfg.Browser, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("synchronous unsubscribe path disabled: browser provider failed", "error", err)
		}
		return syncAttemptDeps{}
	}

	runner, err := unsubscribe.NewRunner(unsubscribe.RunnerOptions{
		Sessions:          provider,
		Classifier:        pages,
		Logger:            logger,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleDelay:       cfg.Browser.SettleDelay,
		SlowDomains:       cfg.Browser.SlowDomains,
		SlowDomainDelay:   cfg.Browser.SlowDomainDelay,
	})
	if err != nil {
		_ = provider.Close()
		if logger != nil {
			logger.Warn("synchronous unsubscribe path disabled: attempt runner failed", "error", err)
		}
		return syncAttemptDeps{}
	}

	return syncAttemptDeps{provider: provider, runner: runner}
}

func newUnsubscribeOrchestrator(
	repos *serviceRepositories,
	cfg *config.AppConfig,
	statusCache *core.StatusCacheService,
	attempts service.AttemptRunner,
	logger *slog.Logger,
) *service.UnsubscribeOrchestrator {
	var batch config.BatchConfig
	if cfg != nil {
		batch = cfg.Batch
	}

	orchestrator, err := service.NewUnsubscribeOrchestrator(service.UnsubscribeOrchestratorOptions{
		DB:              repos.DB,
		Emails:          repos.EmailRepo,
		BatchJobs:       repos.BatchJobRepo,
		Tasks:           repos.TaskRepo,
		TaskResults:     repos.TaskResultRepo,
		Runner:          attempts,
		StatusCache:     statusCache,
		Logger:          logger,
		SyncLimit:       batch.SyncLimit,
		SyncConcurrency: batch.SyncConcurrency,
		MaxRetries:      batch.MaxRetries,
	})
	if err != nil {
		// Repositories are non-nil by construction, so this only trips on
		// programmer error.
		panic(fmt.Sprintf("failed to create unsubscribe orchestrator: %v", err))
	}
	return orchestrator
}

// NewServices initializes all application services.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}

	repos := buildRepositories(deps)

	var obsCfg config.ObservabilityConfig
	var cacheCfg config.CacheConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
		cacheCfg = deps.Config.Cache
	}

	observability := buildObservability(deps.Logger, obsCfg)
	statusCache := newStatusCacheService(repos, cacheCfg)
	attempts := buildSyncAttemptRunner(deps.Config, deps.Logger)

	var authCfg config.AuthConfig
	if deps.Config != nil {
		authCfg = deps.Config.Auth
	}

	return ServiceContainer{
		Unsubscribe:   newUnsubscribeOrchestrator(repos, deps.Config, statusCache, attempts.runner, deps.Logger),
		Tasks:         newTaskService(repos, deps.Config, deps.Logger),
		StatusCache:   statusCache,
		Verifier:      BuildVerifier(authCfg, deps.Logger),
		Browser:       attempts.provider,
		Observability: observability,
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

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newUnsubscribeRunnerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeUnsubscribeRunner,
		name: "unsubscribe runner",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var runnerCfg config.UnsubscribeRunnerConfig
			var browserCfg config.BrowserConfig
			var classifierCfg config.ClassifierConfig
			if deps.cfg.Config != nil {
				runnerCfg = deps.cfg.Config.UnsubscribeRunner
				browserCfg = deps.cfg.Config.Browser
				classifierCfg = deps.cfg.Config.Classifier
			}
			return RunUnsubscribeRunner(ctx, UnsubscribeRunnerConfig{
				DB:          deps.cfg.DB,
				Logger:      deps.logger,
				Runner:      runnerCfg,
				Browser:     browserCfg,
				Classifier:  classifierCfg,
				StatusCache: deps.cfg.Services.StatusCache,
				Metrics:     deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newUnsubscribeRunnerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		taskService: cfg.Services.Tasks,
		browser:     cfg.Services.Browser,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeUnsubscribeRunner,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	taskService *service.TaskService
	browser     *browser.Provider
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
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:     shutdownCtx,
			Server:      cfg.httpServer,
			TaskService: cfg.taskService,
			Logger:      cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	// Release the shared browser allocator once nothing can issue attempts
	if cfg.browser != nil {
		if err := cfg.browser.Close(); err != nil && cfg.logger != nil {
			cfg.logger.Warn("browser shutdown failed", "error", err)
		}
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
