package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/browser"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/classifier"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/reaper"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/unsubscriberunner"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/observability/statsd"
)

// UnsubscribeRunnerConfig contains configuration for the unsubscribe worker pool.
type UnsubscribeRunnerConfig struct {
	DB          *sql.DB
	Logger      *slog.Logger
	Runner      config.UnsubscribeRunnerConfig
	Browser     config.BrowserConfig
	Classifier  config.ClassifierConfig
	StatusCache *core.StatusCacheService
	Metrics     statsd.Sink
}

// RunUnsubscribeRunner starts the unsubscribe worker pool. It owns its browser
// stack for the lifetime of the run: Chrome is released when the pool drains.
func RunUnsubscribeRunner(ctx context.Context, cfg UnsubscribeRunnerConfig) error {
	if cfg.DB == nil {
		return errors.New("database connection is required")
	}

	pages, err := classifier.New(cfg.Classifier, cfg.Logger)
	if err != nil {
		return fmt.Errorf("create page classifier: %w", err)
	}

	provider, err := browser.NewProvider(cfg.Browser, cfg.Logger)
	if err != nil {
		return fmt.Errorf("create browser provider: %w", err)
	}
	defer func() {
		if closeErr := provider.Close(); closeErr != nil && cfg.Logger != nil {
			cfg.Logger.Warn("browser shutdown failed", "error", closeErr)
		}
	}()

	attempts, err := unsubscribe.NewRunner(unsubscribe.RunnerOptions{
		Sessions:          provider,
		Classifier:        pages,
		Logger:            cfg.Logger,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleDelay:       cfg.Browser.SettleDelay,
		SlowDomains:       cfg.Browser.SlowDomains,
		SlowDomainDelay:   cfg.Browser.SlowDomainDelay,
	})
	if err != nil {
		return fmt.Errorf("create attempt runner: %w", err)
	}

	runner, err := unsubscriberunner.NewRunner(unsubscriberunner.RunnerOptions{
		DB:                cfg.DB,
		Logger:            cfg.Logger,
		Attempts:          attempts,
		Lease:             cfg.Runner.TaskLease,
		Concurrency:       cfg.Runner.Concurrency,
		HeartbeatInterval: cfg.Runner.HeartbeatInterval,
		RetryBaseSeconds:  int(cfg.Runner.RetryBaseDelay.Seconds()),
		PollInterval:      cfg.Runner.PollInterval,
		StatusCache:       cfg.StatusCache,
		Metrics:           cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create unsubscribe runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
