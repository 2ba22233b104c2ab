package devauth

// Package devauth provides a static TokenVerifier for local development.

import (
	"context"
	"errors"

	domainauth "github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/auth"
)

// Config controls the dev verifier's fixed identity.
type Config struct {
	UserID string
	Email  string
}

// Verifier accepts any bearer token and returns the configured identity.
// Never wire this outside local development; it performs no validation.
type Verifier struct {
	identity domainauth.Identity
}

// NewVerifier constructs a dev verifier from Config.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	return &Verifier{
		identity: domainauth.Identity{
			UserID: cfg.UserID,
			Email:  cfg.Email,
			Name:   "Development User",
		},
	}, nil
}

// Verify ignores the token and returns the configured identity.
func (v *Verifier) Verify(_ context.Context, _ string) (domainauth.Identity, error) {
	return v.identity, nil
}
