package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// memoryCache is an in-memory CacheRepository for tests. TTLs are recorded
// but not enforced; tests assert on them directly.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	delete(c.ttls, key)
	return ok, nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

func (c *memoryCache) SetTTL(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; !ok {
		return false, nil
	}
	c.ttls[key] = ttl
	return true, nil
}

func (c *memoryCache) SetIfNotExists(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return true, nil
}

func (c *memoryCache) Health(context.Context) error { return nil }

func TestStatusCacheServiceRoundTrip(t *testing.T) {
	cache := newMemoryCache()
	svc := NewStatusCacheService(cache, StatusCacheConfig{TTL: 3 * time.Second})
	ctx := context.Background()

	snapshot := &model.BatchJobStatusResponse{
		JobID:              "3f0cbe29-6a83-44c1-9d36-40b4e9c21a01",
		Status:             model.BatchJobStatusProcessing,
		TotalEmails:        10,
		ProcessedCount:     4,
		SuccessCount:       3,
		FailedCount:        1,
		ProgressPercentage: 40,
	}

	require.NoError(t, svc.PutStatus(ctx, snapshot))

	got, err := svc.GetStatus(ctx, snapshot.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot.ProcessedCount, got.ProcessedCount)
	assert.Equal(t, snapshot.Status, got.Status)
	assert.Equal(t, 3*time.Second, cache.ttls["batch:status:"+snapshot.JobID])
}

func TestStatusCacheServiceMiss(t *testing.T) {
	svc := NewStatusCacheService(newMemoryCache(), StatusCacheConfig{})

	got, err := svc.GetStatus(context.Background(), "missing-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatusCacheServiceCorruptEntryIsAMiss(t *testing.T) {
	cache := newMemoryCache()
	svc := NewStatusCacheService(cache, StatusCacheConfig{})
	ctx := context.Background()

	key := "batch:status:abc"
	require.NoError(t, cache.Set(ctx, key, []byte("{not json"), time.Second))

	got, err := svc.GetStatus(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "corrupt entry is evicted")
}

func TestStatusCacheServiceInvalidate(t *testing.T) {
	cache := newMemoryCache()
	svc := NewStatusCacheService(cache, StatusCacheConfig{})
	ctx := context.Background()

	snapshot := &model.BatchJobStatusResponse{JobID: "job-1", Status: model.BatchJobStatusPending}
	require.NoError(t, svc.PutStatus(ctx, snapshot))
	require.NoError(t, svc.InvalidateStatus(ctx, "job-1"))

	got, err := svc.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatusCacheServiceNilReceiverSafe(t *testing.T) {
	var svc *StatusCacheService

	got, err := svc.GetStatus(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, svc.PutStatus(context.Background(), nil))
	require.NoError(t, svc.InvalidateStatus(context.Background(), "x"))
}
