package ports_test

import (
	"testing"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/mocks"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.TokenVerifier = (*mocks.MockTokenVerifier)(nil)
}
