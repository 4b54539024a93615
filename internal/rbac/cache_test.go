package rbac

import (
	"context"
	"errors"
	"testing"

	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	hits, misses, evictions int
}

func (m *countingMetrics) PermissionCacheHit()      { m.hits++ }
func (m *countingMetrics) PermissionCacheMiss()     { m.misses++ }
func (m *countingMetrics) PermissionCacheEviction() { m.evictions++ }

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	metrics := &countingMetrics{}
	store := NewMemoryStore(2, metrics)
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, store.Put(ctx, a, []string{"admin-view"}))
	require.NoError(t, store.Put(ctx, b, []string{"roles-view"}))

	// Touch a so b becomes the eviction candidate.
	_, ok, err := store.Get(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Put(ctx, c, []string{"permissions-view"}))
	require.Equal(t, 2, store.Len())
	require.Equal(t, 1, metrics.evictions)

	_, ok, _ = store.Get(ctx, b)
	require.False(t, ok)
	_, ok, _ = store.Get(ctx, a)
	require.True(t, ok)
	_, ok, _ = store.Get(ctx, c)
	require.True(t, ok)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(4, nil)
	ctx := context.Background()
	id := uuid.New()

	src := []string{"admin-view"}
	require.NoError(t, store.Put(ctx, id, src))
	src[0] = "mutated"

	keys, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"admin-view"}, keys)

	keys[0] = "mutated again"
	keys, _, _ = store.Get(ctx, id)
	require.Equal(t, []string{"admin-view"}, keys)
}

func TestMemoryStoreDeleteAndFlush(t *testing.T) {
	store := NewMemoryStore(4, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, store.Put(ctx, a, []string{"x"}))
	require.NoError(t, store.Put(ctx, b, []string{"y"}))

	require.NoError(t, store.Delete(ctx, a))
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Flush(ctx))
	require.Equal(t, 0, store.Len())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()
	id := uuid.New()

	_, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, id, []string{"admin-view", "admin-update"}))
	require.True(t, mr.Exists("role_permissions_"+id.String()))

	keys, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"admin-view", "admin-update"}, keys)

	require.NoError(t, store.Delete(ctx, id))
	_, ok, _ = store.Get(ctx, id)
	require.False(t, ok)
}

func TestRedisStoreFlushOnlyTouchesOwnKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, uuid.New(), []string{"a"}))
	require.NoError(t, store.Put(ctx, uuid.New(), []string{"b"}))
	require.NoError(t, mr.Set("session_abc", "keep me"))

	require.NoError(t, store.Flush(ctx))
	require.True(t, mr.Exists("session_abc"))
	require.False(t, anyRoleKeys(t, mr))
}

func anyRoleKeys(t *testing.T, mr *miniredis.Miniredis) bool {
	t.Helper()
	for _, key := range mr.Keys() {
		if len(key) > len("role_permissions_") && key[:len("role_permissions_")] == "role_permissions_" {
			return true
		}
	}
	return false
}

type failingStore struct{}

func (failingStore) Get(context.Context, uuid.UUID) ([]string, bool, error) {
	return nil, false, errors.New("backend down")
}
func (failingStore) Put(context.Context, uuid.UUID, []string) error {
	return errors.New("backend down")
}
func (failingStore) Delete(context.Context, uuid.UUID) error { return errors.New("backend down") }
func (failingStore) Flush(context.Context) error             { return errors.New("backend down") }

func TestCacheDegradesToMissOnStoreFailure(t *testing.T) {
	metrics := &countingMetrics{}
	cache := NewPermissionCache(failingStore{}, slog.Default(), metrics)
	ctx := context.Background()
	id := uuid.New()

	keys, ok := cache.Get(ctx, id)
	require.False(t, ok)
	require.Nil(t, keys)
	require.Equal(t, 1, metrics.misses)

	// None of these may panic or propagate the failure.
	cache.Put(ctx, id, []string{"admin-view"})
	cache.Invalidate(ctx, id)
	cache.InvalidateAll(ctx)
}

func TestCacheMetricsCountHitsAndMisses(t *testing.T) {
	metrics := &countingMetrics{}
	cache := NewPermissionCache(NewMemoryStore(4, metrics), slog.Default(), metrics)
	ctx := context.Background()
	id := uuid.New()

	_, ok := cache.Get(ctx, id)
	require.False(t, ok)
	cache.Put(ctx, id, []string{"admin-view"})
	_, ok = cache.Get(ctx, id)
	require.True(t, ok)

	require.Equal(t, 1, metrics.misses)
	require.Equal(t, 1, metrics.hits)
}
