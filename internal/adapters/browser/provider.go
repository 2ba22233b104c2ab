// Package browser adapts chromedp into the browser session contract used by
// the unsubscribe attempt runner. One shared Chrome process serves all
// sessions; each session is its own tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
)

// Provider owns a Chrome exec allocator and hands out tab-scoped sessions.
type Provider struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewProvider launches the allocator context from browser configuration.
// Chrome itself starts lazily on the first session acquisition.
func NewProvider(cfg config.BrowserConfig, logger *slog.Logger) (*Provider, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 900),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	if logger != nil {
		logger = logger.With("component", "browser_provider")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Provider{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		logger:      logger,
	}, nil
}

// Acquire opens a fresh tab and verifies the browser answers before handing
// the session out. Startup failures surface as ErrSessionUnavailable so the
// queue retries instead of burning the attempt.
func (p *Provider) Acquire(ctx context.Context) (unsubscribe.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, unsubscribe.ErrSessionUnavailable
	}
	p.mu.Unlock()

	tabCtx, cancelTab := chromedp.NewContext(p.allocCtx)

	// Running a no-op action forces browser startup and tab creation now,
	// inside the caller's deadline, rather than on first Navigate.
	startCtx, cancelStart := mergeCancel(tabCtx, ctx)
	err := chromedp.Run(startCtx)
	cancelStart()
	if err != nil {
		cancelTab()
		return nil, fmt.Errorf("%w: %v", unsubscribe.ErrSessionUnavailable, err)
	}

	sess := &session{
		id:        uuid.NewString(),
		tabCtx:    tabCtx,
		cancelTab: cancelTab,
		logger:    p.logger,
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "browser session acquired", "session_id", sess.id)
	}

	return sess, nil
}

// Close shuts the allocator down. Outstanding sessions become unusable.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("browser provider already closed")
	}
	p.closed = true
	p.cancelAlloc()
	return nil
}

// mergeCancel derives a context from base that is additionally cancelled when
// caller is done and inherits caller's deadline. chromedp actions must run on
// a descendant of the tab context, so the caller's context cannot be passed
// to chromedp.Run directly.
func mergeCancel(base, caller context.Context) (context.Context, context.CancelFunc) {
	var merged context.Context
	var cancel context.CancelFunc
	if deadline, ok := caller.Deadline(); ok {
		merged, cancel = context.WithDeadline(base, deadline)
	} else {
		merged, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(caller, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
