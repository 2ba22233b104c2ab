package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeUnsubscribeRunner runs the unsubscribe task worker pool.
	ServiceModeUnsubscribeRunner ServiceMode = "unsubscribe-runner"
	// ServiceModeReaper runs the task reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeUnsubscribeRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeUnsubscribeRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, unsubscribe-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// BatchConfig contains batch submission configuration.
type BatchConfig struct {
	// SyncLimit is the maximum number of emails accepted by the synchronous
	// batch endpoint. Larger batches must go through the async path.
	SyncLimit int `env:"BATCH_SYNC_LIMIT" envDefault:"10"`

	// SyncConcurrency caps how many synchronous attempts run in parallel.
	SyncConcurrency int `env:"BATCH_SYNC_CONCURRENCY" envDefault:"10"`

	// MaxRetries is the retry budget given to each enqueued task.
	MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`
}

// Sanitize applies guardrails to batch configuration values.
func (b *BatchConfig) Sanitize() {
	if b.SyncLimit < 1 {
		b.SyncLimit = 1
	}
	if b.SyncConcurrency < 1 {
		b.SyncConcurrency = 1
	}
	if b.SyncConcurrency > b.SyncLimit {
		b.SyncConcurrency = b.SyncLimit
	}
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
}

// UnsubscribeRunnerConfig contains unsubscribe worker pool configuration.
type UnsubscribeRunnerConfig struct {
	// Concurrency is the number of worker goroutines. Each worker holds at
	// most one browser session, so this also bounds browser memory.
	Concurrency int `env:"UNSUBSCRIBE_RUNNER_CONCURRENCY" envDefault:"5"`

	// TaskLease is the duration to lease a reserved task.
	TaskLease time.Duration `env:"UNSUBSCRIBE_RUNNER_TASK_LEASE" envDefault:"120s"`

	// HeartbeatInterval is how often a worker extends its task lease while
	// the attempt is in flight.
	HeartbeatInterval time.Duration `env:"UNSUBSCRIBE_RUNNER_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// RetryBaseDelay is the base of the exponential retry backoff applied to
	// failed tasks (base, 2*base, 4*base, ...).
	RetryBaseDelay time.Duration `env:"UNSUBSCRIBE_RUNNER_RETRY_BASE_DELAY" envDefault:"2s"`

	// PollInterval is the fallback poll cadence when no task notifications arrive.
	PollInterval time.Duration `env:"UNSUBSCRIBE_RUNNER_POLL_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to unsubscribe runner configuration values.
func (u *UnsubscribeRunnerConfig) Sanitize() {
	if u.Concurrency < 1 {
		u.Concurrency = 1
	}
	if u.TaskLease < 5*time.Second {
		u.TaskLease = 5 * time.Second
	}
	if u.HeartbeatInterval <= 0 || u.HeartbeatInterval >= u.TaskLease {
		u.HeartbeatInterval = u.TaskLease / 4
	}
	if u.RetryBaseDelay <= 0 {
		u.RetryBaseDelay = 2 * time.Second
	}
	if u.PollInterval <= 0 {
		u.PollInterval = 5 * time.Second
	}
}

// ReaperConfig contains task reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending tasks before they are marked as failed.
	// Tasks stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed tasks before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed tasks before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// TaskResultsMaxAge is the maximum age for task_results rows before deletion.
	// These records keep the per-email outcome trail after tasks are reaped.
	TaskResultsMaxAge time.Duration `env:"REAPER_TASK_RESULTS_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.TaskResultsMaxAge < 24*time.Hour {
		r.TaskResultsMaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
