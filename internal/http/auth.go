package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/auth"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/ports"
)

// identityKey is an unexported context key type to avoid collisions across packages.
type identityKey struct{}

// SetIdentityInContext returns a child context carrying the given identity.
func SetIdentityInContext(ctx context.Context, id domainauth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated identity from the request
// context and a boolean indicating presence.
func IdentityFromContext(ctx context.Context) (domainauth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domainauth.Identity)
	return id, ok
}

// OwnerFromContext returns the owner key of the authenticated caller, or ""
// when the request is unauthenticated.
func OwnerFromContext(ctx context.Context) string {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return id.UserID
}

// AuthOptions configures the bearer-token middleware.
type AuthOptions struct {
	// Required: resolves bearer tokens into identities.
	Verifier ports.TokenVerifier
	// Optional: when true, an X-Owner-ID header overrides the verified owner
	// key. Local development only; it lets one process impersonate owners.
	AllowOwnerHeader bool
}

// RequireAuth returns middleware that authenticates requests via a bearer
// token and stores the resulting identity in the request context. Requests
// without a valid token get a 401.
func RequireAuth(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "bearer token required")
				return
			}

			identity, err := opts.Verifier.Verify(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			if identity.Expired(time.Now()) {
				writeUnauthorized(w, "token expired")
				return
			}

			if opts.AllowOwnerHeader {
				if override := r.Header.Get("X-Owner-ID"); override != "" {
					identity.UserID = override
				}
			}

			ctx := SetIdentityInContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New(msg),
	})
}
