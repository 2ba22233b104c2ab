package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; the HTTP middleware consumes them.

import (
	"context"

	domainauth "github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/auth"
)

// TokenVerifier validates a bearer token and resolves the caller's identity.
// Production verifies OIDC ID tokens against the issuer's JWKS; development
// substitutes a static identity.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (domainauth.Identity, error)
}
