package classifier

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.ClassifierConfig{}, slog.Default())
	require.Error(t, err)
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want unsubscribe.PageAnalysis
	}{
		{
			name: "plain json",
			raw:  `{"page_type":"confirmation","description":"Done.","action_required":false}`,
			want: unsubscribe.PageAnalysis{
				PageType:    unsubscribe.PageTypeConfirmation,
				Description: "Done.",
			},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"page_type\":\"button\",\"action_required\":true}\n```",
			want: unsubscribe.PageAnalysis{
				PageType:       unsubscribe.PageTypeButton,
				ActionRequired: true,
			},
		},
		{
			name: "prose around the object",
			raw:  "Here is the classification: {\"page_type\":\"error\",\"error_message\":\"link expired\"} Hope that helps.",
			want: unsubscribe.PageAnalysis{
				PageType:     unsubscribe.PageTypeError,
				ErrorMessage: "link expired",
			},
		},
		{
			name: "unrecognized page type falls back to unknown",
			raw:  `{"page_type":"captcha","description":"A challenge page."}`,
			want: unsubscribe.PageAnalysis{
				PageType:    unsubscribe.PageTypeUnknown,
				Description: "A challenge page.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnalysis(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseAnalysisRejectsGarbage(t *testing.T) {
	_, err := parseAnalysis("the page could not be classified")
	require.Error(t, err)
}

func TestBuildPromptTruncatesLongPages(t *testing.T) {
	c := &Claude{maxPageChars: 100}

	prompt := c.buildPrompt(&unsubscribe.PageSnapshot{
		URL:   "https://news.example.com/unsub",
		Title: "Unsubscribe",
		Text:  strings.Repeat("x", 10_000),
	})

	assert.Less(t, len(prompt), 300)
	assert.Contains(t, prompt, "https://news.example.com/unsub")
}

func TestBuildPromptFallsBackToHTML(t *testing.T) {
	c := &Claude{maxPageChars: 8000}

	prompt := c.buildPrompt(&unsubscribe.PageSnapshot{
		URL:  "https://news.example.com/unsub",
		HTML: "<p>You have been unsubscribed.</p>",
	})

	assert.Contains(t, prompt, "You have been unsubscribed.")
}
