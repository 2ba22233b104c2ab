// Package core provides the business logic contracts for the unsubscribe job system.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// StatusCacheService caches batch job status snapshots under a short TTL so
// clients polling a hot batch do not hit Postgres on every request. The TTL
// is the staleness bound; workers additionally invalidate after progress
// writes so completions surface quickly.
type StatusCacheService struct {
	cache CacheRepository
	ttl   time.Duration
}

// StatusCacheConfig holds configuration for status snapshot caching.
type StatusCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultStatusCacheConfig returns a StatusCacheConfig with sensible defaults.
func DefaultStatusCacheConfig() StatusCacheConfig {
	return StatusCacheConfig{
		TTL: 5 * time.Second,
	}
}

// NewStatusCacheService creates a new StatusCacheService.
func NewStatusCacheService(cache CacheRepository, cfg StatusCacheConfig) *StatusCacheService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultStatusCacheConfig().TTL
	}
	return &StatusCacheService{cache: cache, ttl: ttl}
}

// GetStatus retrieves a cached status snapshot for a batch job.
// Returns nil without error on a cache miss.
func (s *StatusCacheService) GetStatus(
	ctx context.Context,
	jobID string,
) (*model.BatchJobStatusResponse, error) {
	if s == nil || s.cache == nil || jobID == "" {
		return nil, nil
	}

	raw, err := s.cache.Get(ctx, s.statusKey(jobID))
	if err != nil || len(raw) == 0 {
		return nil, err
	}

	var snapshot model.BatchJobStatusResponse
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// A corrupt entry is treated as a miss; the caller refetches.
		_, _ = s.cache.Delete(ctx, s.statusKey(jobID))
		return nil, nil
	}
	return &snapshot, nil
}

// PutStatus caches a status snapshot for a batch job under the configured TTL.
func (s *StatusCacheService) PutStatus(
	ctx context.Context,
	snapshot *model.BatchJobStatusResponse,
) error {
	if s == nil || s.cache == nil || snapshot == nil || snapshot.JobID == "" {
		return nil
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.statusKey(snapshot.JobID), raw, s.ttl)
}

// InvalidateStatus removes the cached snapshot for a batch job.
// Called after progress writes so poll responses track completions promptly.
func (s *StatusCacheService) InvalidateStatus(ctx context.Context, jobID string) error {
	if s == nil || s.cache == nil || jobID == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, s.statusKey(jobID))
	return err
}

func (s *StatusCacheService) statusKey(jobID string) string {
	return "batch:status:" + jobID
}
