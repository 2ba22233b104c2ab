package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, policy.Default())

	_, err = NewLeasePolicy(0)
	assert.ErrorIs(t, err, ErrInvalidDefaultLease)

	_, err = NewLeasePolicy(-time.Second)
	assert.ErrorIs(t, err, ErrInvalidDefaultLease)
}

func TestLeasePolicy_Resolve(t *testing.T) {
	policy, err := NewLeasePolicy(45 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name        string
		request     time.Duration
		wantSeconds int
		wantClamped bool
	}{
		{name: "explicit duration", request: 10 * time.Second, wantSeconds: 10, wantClamped: false},
		{name: "zero falls back to default", request: 0, wantSeconds: 45, wantClamped: false},
		{name: "sub-second clamps to one", request: 250 * time.Millisecond, wantSeconds: 1, wantClamped: true},
		{name: "negative clamps to one", request: -5 * time.Second, wantSeconds: 1, wantClamped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seconds, clamped := policy.Resolve(tt.request)
			assert.Equal(t, tt.wantSeconds, seconds)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestLeasePolicy_NilReceiver(t *testing.T) {
	var policy *LeasePolicy
	assert.Equal(t, time.Duration(0), policy.Default())
	seconds, clamped := policy.Resolve(10 * time.Second)
	assert.Equal(t, 0, seconds)
	assert.False(t, clamped)
}
