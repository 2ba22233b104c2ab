package unsubscribe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession scripts a Session for strategy and runner tests. Snapshots are
// consumed in order; the last one repeats once the script runs out.
type fakeSession struct {
	id        string
	snapshots []*PageSnapshot
	snapIdx   int

	navigateErrs []error
	navigateN    int

	clickMatch  string
	clickErr    error
	clickCalls  int
	submitMatch string
	submitErr   error
	submitCalls int

	closeCalls int
	closeErr   error
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(_ context.Context, _ string) error {
	s.navigateN++
	if len(s.navigateErrs) == 0 {
		return nil
	}
	idx := s.navigateN - 1
	if idx >= len(s.navigateErrs) {
		idx = len(s.navigateErrs) - 1
	}
	return s.navigateErrs[idx]
}

func (s *fakeSession) Snapshot(_ context.Context) (*PageSnapshot, error) {
	if len(s.snapshots) == 0 {
		return nil, errors.New("no snapshot scripted")
	}
	idx := s.snapIdx
	if idx >= len(s.snapshots) {
		idx = len(s.snapshots) - 1
	}
	s.snapIdx++
	snap := s.snapshots[idx]
	if snap == nil {
		return nil, errors.New("snapshot failed")
	}
	return snap, nil
}

func (s *fakeSession) ClickFirst(_ context.Context, _ []string) (string, error) {
	s.clickCalls++
	return s.clickMatch, s.clickErr
}

func (s *fakeSession) SubmitFirst(_ context.Context, _ []string) (string, error) {
	s.submitCalls++
	return s.submitMatch, s.submitErr
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return s.closeErr
}

func TestEvaluateSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		prevURL string
		snap    *PageSnapshot
		want    CheckResult
	}{
		{
			name: "nil snapshot",
			snap: nil,
			want: CheckResult{},
		},
		{
			name: "confirmation text",
			snap: &PageSnapshot{Text: "You have been unsubscribed from our newsletter."},
			want: CheckResult{Success: true, Observation: "you have been unsubscribed"},
		},
		{
			name: "resubscribe control only",
			snap: &PageSnapshot{Text: "Changed your mind? Resubscribe here."},
			want: CheckResult{ResubscribePresent: true, Observation: "resubscribe"},
		},
		{
			name:    "url change alone is not success",
			prevURL: "https://example.com/unsub",
			snap:    &PageSnapshot{URL: "https://example.com/goodbye", Text: "Goodbye."},
			want:    CheckResult{URLChanged: true},
		},
		{
			name: "falls back to html when text empty",
			snap: &PageSnapshot{HTML: "<p>Successfully unsubscribed.</p>"},
			want: CheckResult{Success: true, Observation: "successfully unsubscribed"},
		},
		{
			name: "no signal",
			snap: &PageSnapshot{Text: "Please confirm your choice."},
			want: CheckResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateSnapshot(tt.prevURL, tt.snap)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckResultPassed(t *testing.T) {
	assert.False(t, CheckResult{}.Passed())
	assert.True(t, CheckResult{Success: true}.Passed())
	assert.True(t, CheckResult{ResubscribePresent: true}.Passed())
	assert.False(t, CheckResult{URLChanged: true}.Passed())
}

func TestCheckResultTookEffect(t *testing.T) {
	assert.False(t, CheckResult{}.TookEffect())
	assert.True(t, CheckResult{Success: true}.TookEffect())
	assert.True(t, CheckResult{URLChanged: true}.TookEffect())
}

// scriptedStrategy lets tests control exactly what a strategy reports.
type scriptedStrategy struct {
	name  string
	acted bool
	err   error
	calls int
}

func (s *scriptedStrategy) Describe() string { return s.name }

func (s *scriptedStrategy) Attempt(context.Context, Session) (bool, error) {
	s.calls++
	return s.acted, s.err
}

func TestExecuteStrategies(t *testing.T) {
	t.Run("first success wins", func(t *testing.T) {
		sess := &fakeSession{
			snapshots: []*PageSnapshot{
				{URL: "https://x.test/unsub", Text: "Click below."},
				{URL: "https://x.test/done", Text: "You are now unsubscribed."},
			},
		}
		first := &scriptedStrategy{name: "first", acted: true}
		second := &scriptedStrategy{name: "second", acted: true}

		out := executeStrategies(context.Background(), sess, []Strategy{first, second}, 0)

		require.True(t, out.check.Passed())
		assert.Equal(t, "first", out.strategy)
		assert.Equal(t, 1, first.calls)
		assert.Zero(t, second.calls, "later strategies are not tried after a pass")
	})

	t.Run("skips inapplicable strategies", func(t *testing.T) {
		sess := &fakeSession{
			snapshots: []*PageSnapshot{
				{URL: "https://x.test/unsub", Text: "Click below."},
				{URL: "https://x.test/unsub", Text: "Removed from this list."},
			},
		}
		noMatch := &scriptedStrategy{name: "no-match", acted: false}
		works := &scriptedStrategy{name: "works", acted: true}

		out := executeStrategies(context.Background(), sess, []Strategy{noMatch, works}, 0)

		require.True(t, out.check.Passed())
		assert.Equal(t, "works", out.strategy)
	})

	t.Run("url change stops the round without claiming success", func(t *testing.T) {
		sess := &fakeSession{
			snapshots: []*PageSnapshot{
				{URL: "https://x.test/unsub", Text: "Click below."},
				{URL: "https://x.test/step2", Text: "Almost there."},
			},
		}
		first := &scriptedStrategy{name: "first", acted: true}
		second := &scriptedStrategy{name: "second", acted: true}

		out := executeStrategies(context.Background(), sess, []Strategy{first, second}, 0)

		assert.False(t, out.check.Passed())
		assert.True(t, out.check.URLChanged)
		assert.Equal(t, "first", out.strategy)
		assert.Zero(t, second.calls, "later strategies must not run against a different page")
	})

	t.Run("falls through when nothing passes", func(t *testing.T) {
		sess := &fakeSession{
			snapshots: []*PageSnapshot{
				{URL: "https://x.test/unsub", Text: "Click below."},
			},
		}
		failing := &scriptedStrategy{name: "failing", err: errors.New("element stale")}
		noEffect := &scriptedStrategy{name: "no-effect", acted: true}

		out := executeStrategies(context.Background(), sess, []Strategy{failing, noEffect}, 0)

		assert.False(t, out.check.Passed())
		assert.True(t, out.acted)
		assert.EqualError(t, out.lastErr, "element stale")
	})

	t.Run("cancelled context stops the round", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		st := &scriptedStrategy{name: "never", acted: true}
		out := executeStrategies(ctx, &fakeSession{}, []Strategy{st}, 0)

		assert.Zero(t, st.calls)
		assert.ErrorIs(t, out.lastErr, context.Canceled)
	})
}

func TestDefaultStrategiesOrder(t *testing.T) {
	strategies := DefaultStrategies()
	require.Len(t, strategies, 5)

	assert.Equal(t, "click the unsubscribe button", strategies[0].Describe())
	assert.Equal(t, "submit the unsubscribe form", strategies[3].Describe())
	assert.Equal(t, "click any submit control", strategies[4].Describe())
}

func TestClickStrategyAttempt(t *testing.T) {
	st := &clickStrategy{name: "click it", selectors: []string{"button"}}

	sess := &fakeSession{clickMatch: "button"}
	acted, err := st.Attempt(context.Background(), sess)
	require.NoError(t, err)
	assert.True(t, acted)

	sess = &fakeSession{}
	acted, err = st.Attempt(context.Background(), sess)
	require.NoError(t, err)
	assert.False(t, acted)

	sess = &fakeSession{clickErr: errors.New("node detached")}
	_, err = st.Attempt(context.Background(), sess)
	require.ErrorContains(t, err, "node detached")
}
