package bootstrap

import (
	"context"
	"log/slog"

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/devauth"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/adapters/oidc"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/ports"
)

// BuildVerifier creates a token verifier based on the configured auth mode.
// Returns nil if auth is not configured or configuration is invalid; the HTTP
// layer rejects all API requests when no verifier is wired.
//
//nolint:ireturn // Returning the verifier port keeps the auth mode a config decision.
func BuildVerifier(cfg config.AuthConfig, logger *slog.Logger) ports.TokenVerifier {
	switch cfg.Mode {
	case config.AuthModeMock:
		return buildDevVerifier(cfg, logger)

	case config.AuthModeOAuth:
		return buildOIDCVerifier(cfg, logger)

	default:
		return nil
	}
}

//nolint:ireturn // see BuildVerifier
func buildDevVerifier(cfg config.AuthConfig, logger *slog.Logger) ports.TokenVerifier {
	verifier, err := devauth.NewVerifier(devauth.Config{
		UserID: cfg.DevAuth.UserID,
		Email:  cfg.DevAuth.Email,
	})
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create dev auth verifier, auth disabled", "error", err)
		}
		return nil
	}

	if logger != nil {
		logger.Warn("mock authentication enabled; do not use outside local development",
			"user_id", cfg.DevAuth.UserID)
	}
	return verifier
}

//nolint:ireturn // see BuildVerifier
func buildOIDCVerifier(cfg config.AuthConfig, logger *slog.Logger) ports.TokenVerifier {
	// Only enable when fully configured
	oauth := cfg.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" {
		if logger != nil {
			logger.Warn("AuthModeOAuth selected but required config missing; auth disabled",
				"discovery_url_empty", oauth.DiscoveryURL == "",
				"client_id_empty", oauth.ClientID == "",
			)
		}
		return nil
	}

	verifier, err := oidc.NewVerifier(context.Background(), oidc.VerifierConfig{
		ClientID:     oauth.ClientID,
		DiscoveryURL: oauth.DiscoveryURL,
	})
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create OIDC verifier, auth disabled", "error", err)
		}
		return nil
	}

	return verifier
}
