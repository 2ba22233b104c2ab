package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/ports"
)

type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()

	issuer := ""
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		doc := discoveryDocument{
			Issuer:                issuer,
			AuthorizationEndpoint: issuer + "/auth",
			TokenEndpoint:         issuer + "/token",
			UserinfoEndpoint:      issuer + "/userinfo",
			JwksURI:               issuer + "/jwks",
		}
		_ = json.NewEncoder(w).Encode(doc)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	issuer = srv.URL
	return srv
}

func TestNewVerifier_Success(t *testing.T) {
	srv := newDiscoveryServer(t)

	v, err := NewVerifier(context.Background(), VerifierConfig{
		ClientID:     "test-client",
		DiscoveryURL: srv.URL,
	})
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestNewVerifier_AcceptsDiscoveryDocumentURL(t *testing.T) {
	srv := newDiscoveryServer(t)

	v, err := NewVerifier(context.Background(), VerifierConfig{
		ClientID:     "test-client",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
	})
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestNewVerifier_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config VerifierConfig
		errMsg string
	}{
		{
			name:   "missing client ID",
			config: VerifierConfig{DiscoveryURL: "http://example.com"},
			errMsg: "client ID is required",
		},
		{
			name:   "missing discovery URL",
			config: VerifierConfig{ClientID: "client"},
			errMsg: "discovery URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVerifier(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	srv := newDiscoveryServer(t)

	v, err := NewVerifier(context.Background(), VerifierConfig{
		ClientID:     "test-client",
		DiscoveryURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "")
	require.Error(t, err)
}

func TestVerifier_ImplementsInterface(t *testing.T) {
	var _ ports.TokenVerifier = (*Verifier)(nil)
}
