package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/clodoaldofavaro/email-sort-app-backend/config"
)

func TestBuildVerifierMockMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier := BuildVerifier(config.AuthConfig{
		Mode: config.AuthModeMock,
		DevAuth: config.DevAuthConfig{
			UserID: "dev",
			Email:  "dev@example.com",
		},
	}, logger)

	if verifier == nil {
		t.Fatal("BuildVerifier() = nil, want dev verifier")
	}
}

func TestBuildVerifierReturnsNilOnInvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		auth config.AuthConfig
	}{
		{
			name: "mock mode missing identity",
			auth: config.AuthConfig{
				Mode: config.AuthModeMock,
			},
		},
		{
			name: "oauth mode missing discovery URL",
			auth: config.AuthConfig{
				Mode: config.AuthModeOAuth,
				OAuth: config.OAuthConfig{
					ClientID: "client-id",
				},
			},
		},
		{
			name: "oauth mode missing client ID",
			auth: config.AuthConfig{
				Mode: config.AuthModeOAuth,
				OAuth: config.OAuthConfig{
					DiscoveryURL: "https://issuer.example.com",
				},
			},
		},
		{
			name: "unknown mode",
			auth: config.AuthConfig{
				Mode: config.AuthMode("saml"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if verifier := BuildVerifier(tt.auth, logger); verifier != nil {
				t.Fatalf("BuildVerifier() = %v, want nil", verifier)
			}
		})
	}
}
