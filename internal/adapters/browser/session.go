package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
)

// session is one Chrome tab implementing unsubscribe.Session.
type session struct {
	id        string
	tabCtx    context.Context
	cancelTab context.CancelFunc
	logger    *slog.Logger

	closeOnce sync.Once
}

func (s *session) ID() string { return s.id }

// Navigate loads the URL and waits for the document body to become ready.
// Full network idleness is deliberately not awaited; tracking pixels and
// analytics on marketing pages keep connections open indefinitely.
func (s *session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := mergeCancel(s.tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Snapshot captures the current URL, title, full HTML, and a plain-text
// rendering of the page body.
func (s *session) Snapshot(ctx context.Context) (*unsubscribe.PageSnapshot, error) {
	runCtx, cancel := mergeCancel(s.tabCtx, ctx)
	defer cancel()

	var snap unsubscribe.PageSnapshot
	err := chromedp.Run(runCtx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot page: %w", err)
	}

	snap.Text = extractText(snap.HTML)
	return &snap, nil
}

// ClickFirst clicks the first selector that matches at least one element.
// Selectors that match nothing are skipped without error.
func (s *session) ClickFirst(ctx context.Context, selectors []string) (string, error) {
	runCtx, cancel := mergeCancel(s.tabCtx, ctx)
	defer cancel()

	for _, sel := range selectors {
		present, err := s.present(runCtx, sel)
		if err != nil {
			return "", err
		}
		if !present {
			continue
		}
		if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("click %q: %w", sel, err)
		}
		if s.logger != nil {
			s.logger.DebugContext(ctx, "clicked element", "session_id", s.id, "selector", sel)
		}
		return sel, nil
	}
	return "", nil
}

// SubmitFirst submits the first matching form among the given selectors.
func (s *session) SubmitFirst(ctx context.Context, selectors []string) (string, error) {
	runCtx, cancel := mergeCancel(s.tabCtx, ctx)
	defer cancel()

	for _, sel := range selectors {
		present, err := s.present(runCtx, sel)
		if err != nil {
			return "", err
		}
		if !present {
			continue
		}
		if err := chromedp.Run(runCtx, chromedp.Submit(sel, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("submit %q: %w", sel, err)
		}
		if s.logger != nil {
			s.logger.DebugContext(ctx, "submitted form", "session_id", s.id, "selector", sel)
		}
		return sel, nil
	}
	return "", nil
}

// present reports whether the selector matches any node on the current page.
// AtLeast(0) keeps the query from blocking when nothing matches.
func (s *session) present(runCtx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	err := chromedp.Run(runCtx,
		chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return false, fmt.Errorf("query %q: %w", sel, err)
	}
	return len(nodes) > 0, nil
}

// Close tears down the tab. Idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancelTab()
	})
	return nil
}
