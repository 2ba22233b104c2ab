package oidc

// Package oidc verifies bearer ID tokens against an OIDC issuer.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/auth"
)

// Verifier implements ports.TokenVerifier against a real OIDC issuer. The
// issuer's JWKS is fetched once at construction and refreshed by go-oidc on
// key rotation.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// VerifierConfig holds configuration for the OIDC verifier.
type VerifierConfig struct {
	ClientID     string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a 30s-timeout client
}

// NewVerifier creates a verifier from the issuer's discovery document.
func NewVerifier(ctx context.Context, config VerifierConfig) (*Verifier, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// go-oidc expects the bare issuer URL, not the discovery document path.
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Verifier{
		verifier: provider.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

// idTokenClaims is the claim subset the API needs. sub becomes the owner key.
type idTokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Verify checks the token's signature, issuer, audience, and expiry, then
// maps its claims onto an identity.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	if rawToken == "" {
		return domainauth.Identity{}, errors.New("token is required")
	}

	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id token claims: %w", err)
	}
	if claims.Sub == "" {
		return domainauth.Identity{}, errors.New("id token has no subject")
	}

	return domainauth.Identity{
		UserID:    claims.Sub,
		Email:     claims.Email,
		Name:      claims.Name,
		ExpiresAt: idToken.Expiry,
	}, nil
}
