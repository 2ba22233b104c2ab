// Package classifier implements AI-assisted unsubscribe page classification
// using the Anthropic API.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
)

const systemPrompt = `You classify unsubscribe pages for an automated email
unsubscribe system. Given the text content of a web page a user landed on via
an unsubscribe link, respond with only a JSON object, no prose and no markdown
fences, in this exact shape:

{
  "page_type": "confirmation" | "already_unsubscribed" | "form" | "button" | "error" | "unknown",
  "description": "one sentence describing the page",
  "action_required": true | false,
  "error_message": "the page's error text, only when page_type is error",
  "has_resubscribe_option": true | false
}

page_type meanings:
- confirmation: the page confirms the unsubscribe already succeeded
- already_unsubscribed: the page says the address was unsubscribed previously
- form: the page presents a form that must be submitted to unsubscribe
- button: the page presents a button or link that must be clicked to unsubscribe
- error: the page reports an error (expired link, invalid address, server fault)
- unknown: none of the above fit

has_resubscribe_option is true when the page offers to undo or resubscribe,
which implies the unsubscribe itself already took effect.`

// Claude classifies page snapshots with an Anthropic model.
type Claude struct {
	client       anthropic.Client
	model        string
	maxTokens    int
	timeout      time.Duration
	maxPageChars int
	logger       *slog.Logger
}

// New constructs a Claude classifier from configuration.
func New(cfg config.ClassifierConfig, logger *slog.Logger) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	if logger != nil {
		logger = logger.With("component", "page_classifier")
	}

	return &Claude{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		maxPageChars: cfg.MaxPageChars,
		logger:       logger,
	}, nil
}

// Classify sends the page snapshot to the model and parses its verdict.
func (c *Claude) Classify(
	ctx context.Context,
	snapshot *unsubscribe.PageSnapshot,
) (*unsubscribe.PageAnalysis, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is required")
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Messages.New(reqCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(c.buildPrompt(snapshot))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classify page: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("classifier returned no text")
	}

	analysis, err := parseAnalysis(text.String())
	if err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "page classified",
			"url", snapshot.URL,
			"page_type", analysis.PageType,
			"action_required", analysis.ActionRequired)
	}

	return analysis, nil
}

// buildPrompt assembles the user message, truncating long pages so the
// request stays within a bounded token budget.
func (c *Claude) buildPrompt(snapshot *unsubscribe.PageSnapshot) string {
	text := snapshot.Text
	if text == "" {
		text = snapshot.HTML
	}
	if c.maxPageChars > 0 && len(text) > c.maxPageChars {
		text = text[:c.maxPageChars]
	}

	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(snapshot.URL)
	b.WriteString("\nTitle: ")
	b.WriteString(snapshot.Title)
	b.WriteString("\n\nPage content:\n")
	b.WriteString(text)
	return b.String()
}

// parseAnalysis decodes the model's JSON verdict. Markdown fences are
// stripped first; models occasionally wrap output despite instructions.
func parseAnalysis(raw string) (*unsubscribe.PageAnalysis, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Tolerate stray prose around the object by slicing to the outermost braces.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var analysis unsubscribe.PageAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("parse classifier response: %w", err)
	}

	if !analysis.PageType.Valid() {
		analysis.PageType = unsubscribe.PageTypeUnknown
	}

	return &analysis, nil
}
