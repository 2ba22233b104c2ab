// Package task holds queue-domain logic shared by the task service and workers.
package task

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeasePolicy normalises lease durations for task reservations and heartbeats.
// Leases are stored as whole seconds; sub-second requests are clamped to 1s.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// Resolve normalises the requested duration to a whole number of seconds.
// A zero request falls back to the default lease; negative requests clamp to 1s.
// The second return value reports whether clamping occurred.
func (p *LeasePolicy) Resolve(request time.Duration) (int, bool) {
	if p == nil {
		return 0, false
	}
	switch {
	case request > 0:
		return durationToSeconds(request)
	case request == 0:
		seconds, _ := durationToSeconds(p.defaultLease)
		return seconds, false
	default:
		return 1, true
	}
}

func durationToSeconds(d time.Duration) (int, bool) {
	seconds := int64(d / time.Second)
	clamped := false

	if seconds <= 0 {
		seconds = 1
		clamped = true
	}
	if seconds > int64(math.MaxInt) {
		seconds = int64(math.MaxInt)
		clamped = true
	}

	return int(seconds), clamped
}
