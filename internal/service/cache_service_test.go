package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Purge(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func TestSessionKeyLayout(t *testing.T) {
	assert.Equal(t, "proctor:session:s-1:satisfaction", SessionKey("s-1", "satisfaction"))
	assert.Equal(t, "proctor:session:s-1:quota:1.15", SessionKey("s-1", "quota", "1.15"))
}

func TestCacheServiceRoundTripAndDefaultTTL(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "proctor:k", map[string]int{"a": 1}, 0))
	assert.Equal(t, time.Minute, repo.ttls["proctor:k"])

	var out map[string]int
	hit, err := svc.Get(ctx, "proctor:k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, out["a"])

	hit, err = svc.Get(ctx, "proctor:missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("redis down")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out string
	hit, err := svc.Get(context.Background(), "proctor:k", &out)
	assert.False(t, hit)
	assert.Error(t, err)
}

func TestInvalidateSessionDropsOnlyThatSession(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, 0, nil, true)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, SessionKey("s-1", "satisfaction"), 1, 0))
	require.NoError(t, svc.Set(ctx, SessionKey("s-1", "quota", "1.15"), 1, 0))
	require.NoError(t, svc.Set(ctx, SessionKey("s-2", "satisfaction"), 1, 0))

	svc.InvalidateSession(ctx, "s-1")

	assert.False(t, repo.has(SessionKey("s-1", "satisfaction")))
	assert.False(t, repo.has(SessionKey("s-1", "quota", "1.15")))
	assert.True(t, repo.has(SessionKey("s-2", "satisfaction")))
}

func TestDisabledCacheIsANoop(t *testing.T) {
	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	nilSvc.InvalidateSession(context.Background(), "s-1")

	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, 0, nil, false)
	require.NoError(t, svc.Set(context.Background(), "proctor:k", 1, 0))
	assert.Empty(t, repo.entries)
}

func TestLoadThroughComputesOnceAndSkipsErrors(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, 0, nil, true)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (*[]int, error) {
		calls++
		v := []int{calls}
		return &v, nil
	}

	first, err := loadThrough(ctx, svc, "proctor:k", load)
	require.NoError(t, err)
	second, err := loadThrough(ctx, svc, "proctor:k", load)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, *first)
	assert.Equal(t, []int{1}, *second)
	assert.Equal(t, 1, calls)

	_, err = loadThrough(ctx, svc, "proctor:bad", func(context.Context) (*int, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	assert.False(t, repo.has("proctor:bad"))

	fresh, err := loadThrough(ctx, (*CacheService)(nil), "proctor:k", load)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, *fresh)
}
