package config

import (
	"strings"
	"time"
)

// BrowserConfig contains headless browser session configuration.
type BrowserConfig struct {
	// Headless runs Chrome without a visible window. Disable locally to
	// watch attempts.
	Headless bool `env:"BROWSER_HEADLESS" envDefault:"true"`

	// NoSandbox disables the Chrome sandbox. Required in most container
	// runtimes where the sandbox cannot acquire the needed privileges.
	NoSandbox bool `env:"BROWSER_NO_SANDBOX" envDefault:"true"`

	// ChromePath overrides the Chrome binary location. Empty uses the
	// default lookup.
	ChromePath string `env:"BROWSER_CHROME_PATH"`

	// NavigationTimeout bounds a single page load attempt.
	NavigationTimeout time.Duration `env:"BROWSER_NAVIGATION_TIMEOUT" envDefault:"30s"`

	// SettleDelay is how long to wait after navigation for client-side
	// rendering before snapshotting the page.
	SettleDelay time.Duration `env:"BROWSER_SETTLE_DELAY" envDefault:"2s"`

	// SlowDomains lists hostname substrings that get SlowDomainDelay
	// instead of SettleDelay.
	SlowDomains []string `env:"BROWSER_SLOW_DOMAINS" envSeparator:","`

	// SlowDomainDelay replaces SettleDelay for hosts matching SlowDomains.
	SlowDomainDelay time.Duration `env:"BROWSER_SLOW_DOMAIN_DELAY" envDefault:"5s"`
}

// Sanitize applies guardrails to browser configuration values.
func (b *BrowserConfig) Sanitize() {
	if b.NavigationTimeout < 1*time.Second {
		b.NavigationTimeout = 1 * time.Second
	}
	if b.SettleDelay < 0 {
		b.SettleDelay = 0
	}
	if b.SlowDomainDelay < b.SettleDelay {
		b.SlowDomainDelay = b.SettleDelay
	}

	cleaned := b.SlowDomains[:0]
	for _, d := range b.SlowDomains {
		d = strings.TrimSpace(d)
		if d != "" {
			cleaned = append(cleaned, d)
		}
	}
	b.SlowDomains = cleaned
}

// ClassifierConfig contains AI page classification configuration.
type ClassifierConfig struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string `env:"ANTHROPIC_API_KEY"`

	// Model selects the model used for page classification.
	Model string `env:"CLASSIFIER_MODEL" envDefault:"claude-3-5-haiku-latest"`

	// MaxTokens caps the classification response size.
	MaxTokens int `env:"CLASSIFIER_MAX_TOKENS" envDefault:"1024"`

	// Timeout bounds a single classification request.
	Timeout time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s"`

	// MaxPageChars truncates the extracted page text sent for
	// classification. Keeps prompt cost bounded on huge pages.
	MaxPageChars int `env:"CLASSIFIER_MAX_PAGE_CHARS" envDefault:"8000"`
}

// Sanitize applies guardrails to classifier configuration values.
func (c *ClassifierConfig) Sanitize() {
	if c.MaxTokens < 256 {
		c.MaxTokens = 256
	}
	if c.Timeout < 1*time.Second {
		c.Timeout = 1 * time.Second
	}
	if c.MaxPageChars < 1000 {
		c.MaxPageChars = 1000
	}
}
