package devauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{UserID: "dev-user", Email: "dev@example.com"}},
		{name: "missing user id", cfg: Config{Email: "dev@example.com"}, wantErr: true},
		{name: "missing email", cfg: Config{UserID: "dev-user"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVerifier(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestVerifyReturnsConfiguredIdentity(t *testing.T) {
	v, err := NewVerifier(Config{UserID: "dev-user", Email: "dev@example.com"})
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "any-token-at-all")
	require.NoError(t, err)
	assert.Equal(t, "dev-user", id.UserID)
	assert.Equal(t, "dev@example.com", id.Email)
}
