// Package auth holds the identity types shared by the token verification
// adapters and the HTTP layer.
package auth

import "time"

// Identity is an authenticated caller. The user ID doubles as the owner key
// on batch jobs, tasks, and emails.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// Expired reports whether the identity's token lifetime has lapsed.
// A zero ExpiresAt means the verifier did not bound the lifetime.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}
