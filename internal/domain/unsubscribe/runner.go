package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	defaultNavigationAttempts = 3
	defaultNavigationPause    = 2 * time.Second
	defaultNavigationTimeout  = 30 * time.Second
	defaultSettleDelay        = 2 * time.Second
	defaultSlowDomainDelay    = 5 * time.Second

	failureMessage = "Failed to process unsubscribe"
)

// RunnerOptions configures the attempt runner.
type RunnerOptions struct {
	Sessions   SessionProvider
	Classifier Classifier
	Logger     *slog.Logger

	// Strategies overrides the default ordered strategy list.
	Strategies []Strategy

	// Navigation is the inner retry policy for page loads.
	// Defaults to 3 attempts with a 2s pause.
	Navigation Policy

	// NavigationTimeout bounds a single page-load attempt.
	NavigationTimeout time.Duration

	// SettleDelay is the pause between an action and its success check.
	SettleDelay time.Duration

	// SlowDomains lists host substrings that need an extra settle delay
	// after navigation before the page content is trustworthy.
	SlowDomains     []string
	SlowDomainDelay time.Duration
}

// Runner executes one unsubscribe attempt per call: navigate, classify, act,
// verify. The browser session is acquired at the start and released exactly
// once on every exit path.
type Runner struct {
	sessions   SessionProvider
	classifier Classifier
	logger     *slog.Logger
	strategies []Strategy

	navigation      Policy
	navTimeout      time.Duration
	settleDelay     time.Duration
	slowDomains     []string
	slowDomainDelay time.Duration
}

// NewRunner constructs an attempt runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session provider is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("classifier is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	navigation := opts.Navigation
	if navigation.MaxAttempts <= 0 {
		navigation = Policy{
			MaxAttempts: defaultNavigationAttempts,
			Backoff:     ConstantBackoff(defaultNavigationPause),
		}
	}

	navTimeout := opts.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	slowDelay := opts.SlowDomainDelay
	if slowDelay <= 0 {
		slowDelay = defaultSlowDomainDelay
	}

	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}

	return &Runner{
		sessions:        opts.Sessions,
		classifier:      opts.Classifier,
		logger:          logger.With("component", "attempt_runner"),
		strategies:      strategies,
		navigation:      navigation,
		navTimeout:      navTimeout,
		settleDelay:     settle,
		slowDomains:     opts.SlowDomains,
		slowDomainDelay: slowDelay,
	}, nil
}

// Run executes one attempt against the given unsubscribe link.
//
// Page-level outcomes (classified error, no successful strategy, navigation
// exhaustion) return a Result with Success=false and a nil error; they are
// terminal for this attempt. A non-nil error is returned only for transient
// infrastructure failures (session acquisition), which the queue retries.
func (r *Runner) Run(ctx context.Context, link string) (Result, error) {
	sess, err := r.sessions.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	closed := false
	closeOnce := func() {
		if closed {
			return
		}
		closed = true
		if cerr := sess.Close(); cerr != nil {
			r.logger.WarnContext(ctx, "close browser session", "session_id", sess.ID(), "error", cerr)
		}
	}
	defer closeOnce()

	result := r.run(ctx, sess, link)
	result.SessionID = sess.ID()
	return result, nil
}

func (r *Runner) run(ctx context.Context, sess Session, link string) Result {
	if err := r.navigate(ctx, sess, link); err != nil {
		r.logger.WarnContext(ctx, "navigation failed", "link", link, "error", err)
		return Result{
			Success: false,
			Message: "Failed to load unsubscribe page",
			Details: err.Error(),
		}
	}

	snap, err := sess.Snapshot(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "page snapshot failed", "link", link, "error", err)
		return Result{Success: false, Message: failureMessage, Details: err.Error()}
	}

	analysis, err := r.classifier.Classify(ctx, snap)
	if err != nil {
		r.logger.ErrorContext(ctx, "page classification failed", "link", link, "error", err)
		return Result{Success: false, Message: failureMessage, Details: err.Error()}
	}

	switch analysis.PageType {
	case PageTypeConfirmation, PageTypeAlreadyUnsubscribed:
		return Result{
			Success: true,
			Message: "Unsubscribed successfully",
			Details: analysis.Description,
		}
	case PageTypeError:
		details := analysis.ErrorMessage
		if details == "" {
			details = analysis.Description
		}
		return Result{
			Success: false,
			Message: "Unsubscribe page reported an error",
			Details: details,
		}
	default:
		// form, button or unrecognized: try the action strategies.
		return r.act(ctx, sess, analysis)
	}
}

func (r *Runner) navigate(ctx context.Context, sess Session, link string) error {
	err := r.navigation.Run(ctx, func(ctx context.Context) error {
		navCtx, cancel := context.WithTimeout(ctx, r.navTimeout)
		defer cancel()
		return sess.Navigate(navCtx, link)
	})
	if err != nil {
		return err
	}

	if delay := r.settleDelayFor(link); delay > 0 {
		return sleepCtx(ctx, delay)
	}
	return nil
}

// settleDelayFor returns the extra post-navigation delay for known
// slow-loading domains, 0 otherwise.
func (r *Runner) settleDelayFor(link string) time.Duration {
	if len(r.slowDomains) == 0 {
		return 0
	}
	u, err := url.Parse(link)
	if err != nil {
		return 0
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range r.slowDomains {
		if pattern != "" && strings.Contains(host, strings.ToLower(pattern)) {
			return r.slowDomainDelay
		}
	}
	return 0
}

func (r *Runner) act(ctx context.Context, sess Session, initial *PageAnalysis) Result {
	outcome := executeStrategies(ctx, sess, r.strategies, r.settleDelay)
	if outcome.lastErr != nil {
		r.logger.DebugContext(ctx, "strategy round finished with error",
			"strategy", outcome.strategy, "error", outcome.lastErr)
	}

	finalSnap, err := sess.Snapshot(ctx)
	if err != nil {
		if outcome.check.Passed() {
			return successResult(outcome)
		}
		return Result{Success: false, Message: failureMessage, Details: err.Error()}
	}

	finalAnalysis, err := r.classifier.Classify(ctx, finalSnap)
	if err != nil {
		r.logger.WarnContext(ctx, "final classification failed", "error", err)
		finalAnalysis = initial
	}

	success := outcome.check.Passed() ||
		finalAnalysis.PageType == PageTypeConfirmation ||
		finalAnalysis.PageType == PageTypeAlreadyUnsubscribed ||
		finalAnalysis.HasResubscribeOption

	if success {
		res := successResult(outcome)
		if res.Details == "" {
			res.Details = finalAnalysis.Description
		}
		return res
	}

	details := finalAnalysis.Description
	if outcome.lastErr != nil {
		details = outcome.lastErr.Error()
	}
	message := "No unsubscribe action succeeded"
	if !outcome.acted {
		message = "No actionable unsubscribe control found"
	}
	return Result{Success: false, Message: message, Details: details}
}

func successResult(outcome strategyOutcome) Result {
	details := outcome.check.Observation
	if outcome.strategy != "" {
		if details != "" {
			details = fmt.Sprintf("%s (%s)", outcome.strategy, details)
		} else {
			details = outcome.strategy
		}
	}
	return Result{
		Success: true,
		Message: "Unsubscribed successfully",
		Details: details,
	}
}
