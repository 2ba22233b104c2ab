package unsubscribe

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Strategy is one candidate way of interacting with an unknown page to
// perform an unsubscribe action. Strategies are evaluated in order by a
// first-success-wins combinator so they can be added, removed and tested
// independently.
type Strategy interface {
	// Describe names the strategy for logs and diagnostic messages.
	Describe() string
	// Attempt performs the interaction. It returns false when the page has
	// no element this strategy applies to, which is not an error.
	Attempt(ctx context.Context, sess Session) (bool, error)
}

// CheckResult is the lightweight post-action success check: did confirmation
// text appear, did a resubscribe control appear, did the URL change.
type CheckResult struct {
	Success            bool
	ResubscribePresent bool
	URLChanged         bool
	Observation        string
}

// Passed reports whether either sufficient success signal is present.
// The OR of the explicit signal and the resubscribe heuristic is intentional.
func (c CheckResult) Passed() bool {
	return c.Success || c.ResubscribePresent
}

// TookEffect reports whether the action visibly did something to the page.
// A URL change alone is not success, but it does mean later strategies would
// run against a different page, so the round must stop and let the final
// classification decide.
func (c CheckResult) TookEffect() bool {
	return c.Passed() || c.URLChanged
}

type clickStrategy struct {
	name      string
	selectors []string
}

func (s *clickStrategy) Describe() string { return s.name }

func (s *clickStrategy) Attempt(ctx context.Context, sess Session) (bool, error) {
	matched, err := sess.ClickFirst(ctx, s.selectors)
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.name, err)
	}
	return matched != "", nil
}

type submitFormStrategy struct {
	selectors []string
}

func (s *submitFormStrategy) Describe() string { return "submit the unsubscribe form" }

func (s *submitFormStrategy) Attempt(ctx context.Context, sess Session) (bool, error) {
	matched, err := sess.SubmitFirst(ctx, s.selectors)
	if err != nil {
		return false, fmt.Errorf("submit form: %w", err)
	}
	return matched != "", nil
}

// DefaultStrategies returns the fixed, ordered candidate list: specific
// unsubscribe controls first, then confirm/opt-out variants, then form
// submission, then a generic catch-all.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&clickStrategy{
			name: "click the unsubscribe button",
			selectors: []string{
				`button[id*="unsubscribe" i]`,
				`a[id*="unsubscribe" i]`,
				`button[class*="unsubscribe" i]`,
				`a[class*="unsubscribe" i]`,
				`input[type="submit"][value*="unsubscribe" i]`,
			},
		},
		&clickStrategy{
			name: "click the confirm button",
			selectors: []string{
				`button[id*="confirm" i]`,
				`button[class*="confirm" i]`,
				`input[type="submit"][value*="confirm" i]`,
				`button[type="submit"]`,
			},
		},
		&clickStrategy{
			name: "click the opt-out or remove button",
			selectors: []string{
				`button[id*="opt-out" i]`,
				`button[id*="optout" i]`,
				`a[id*="opt-out" i]`,
				`button[class*="remove" i]`,
				`input[type="submit"][value*="remove" i]`,
			},
		},
		&submitFormStrategy{
			selectors: []string{
				`form[id*="unsubscribe" i]`,
				`form[class*="unsubscribe" i]`,
				`form[action*="unsubscribe" i]`,
				`form`,
			},
		},
		&clickStrategy{
			name: "click any submit control",
			selectors: []string{
				`input[type="submit"]`,
				`button`,
			},
		},
	}
}

// confirmationPhrases are page-text fragments that signal a completed unsubscribe.
var confirmationPhrases = []string{
	"successfully unsubscribed",
	"you have been unsubscribed",
	"you've been unsubscribed",
	"unsubscribed successfully",
	"you are now unsubscribed",
	"removed from our mailing list",
	"removed from this list",
	"no longer receive",
	"preferences have been updated",
	"preferences updated",
	"subscription has been cancelled",
	"subscription has been canceled",
	"opt-out successful",
}

// resubscribePhrases signal the presence of a resubscribe control, which only
// appears once an unsubscribe has taken effect.
var resubscribePhrases = []string{
	"resubscribe",
	"re-subscribe",
	"subscribe again",
	"opt back in",
	"rejoin the list",
	"undo",
}

// EvaluateSnapshot runs the lightweight success check against a post-action
// snapshot. prevURL is the page URL observed before the action.
func EvaluateSnapshot(prevURL string, snap *PageSnapshot) CheckResult {
	if snap == nil {
		return CheckResult{}
	}

	text := strings.ToLower(snap.Text)
	if text == "" {
		text = strings.ToLower(snap.HTML)
	}

	result := CheckResult{
		URLChanged: prevURL != "" && snap.URL != "" && snap.URL != prevURL,
	}
	for _, phrase := range confirmationPhrases {
		if strings.Contains(text, phrase) {
			result.Success = true
			result.Observation = phrase
			break
		}
	}
	for _, phrase := range resubscribePhrases {
		if strings.Contains(text, phrase) {
			result.ResubscribePresent = true
			if result.Observation == "" {
				result.Observation = phrase
			}
			break
		}
	}
	return result
}

// strategyOutcome captures what the combinator observed for one attempt round.
type strategyOutcome struct {
	strategy string
	acted    bool
	check    CheckResult
	lastErr  error
}

// executeStrategies tries each strategy in order and stops at the first one
// whose success check passes. When none succeed it falls through with the
// last observed state.
func executeStrategies(
	ctx context.Context,
	sess Session,
	strategies []Strategy,
	settle time.Duration,
) strategyOutcome {
	var out strategyOutcome

	for _, st := range strategies {
		if ctx.Err() != nil {
			out.lastErr = ctx.Err()
			return out
		}

		before, err := sess.Snapshot(ctx)
		if err != nil {
			out.lastErr = err
			continue
		}

		acted, err := st.Attempt(ctx, sess)
		if err != nil {
			out.lastErr = err
			continue
		}
		if !acted {
			continue
		}

		out.strategy = st.Describe()
		out.acted = true

		if sleepErr := sleepCtx(ctx, settle); sleepErr != nil {
			out.lastErr = sleepErr
			return out
		}

		after, err := sess.Snapshot(ctx)
		if err != nil {
			out.lastErr = err
			continue
		}

		out.check = EvaluateSnapshot(before.URL, after)
		if out.check.TookEffect() {
			return out
		}
	}

	return out
}
