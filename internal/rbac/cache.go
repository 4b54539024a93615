package rbac

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is the storage backend behind PermissionCache. Implementations must
// be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, roleID uuid.UUID) ([]string, bool, error)
	Put(ctx context.Context, roleID uuid.UUID, keys []string) error
	Delete(ctx context.Context, roleID uuid.UUID) error
	Flush(ctx context.Context) error
}

// Metrics receives cache outcome counters. All methods must tolerate being
// called from concurrent requests.
type Metrics interface {
	PermissionCacheHit()
	PermissionCacheMiss()
	PermissionCacheEviction()
}

// PermissionCache memoizes role → resolved action keys. Entries never expire
// on a timer; they live until invalidated or, for the memory store, evicted
// by the entry bound. Store failures degrade to miss behaviour so a broken
// cache backend never fails the request.
type PermissionCache struct {
	store   Store
	logger  *slog.Logger
	metrics Metrics
}

// NewPermissionCache wraps a Store. metrics may be nil.
func NewPermissionCache(store Store, logger *slog.Logger, metrics Metrics) *PermissionCache {
	return &PermissionCache{store: store, logger: logger, metrics: metrics}
}

// Get returns the cached action keys for a role, reporting a miss when the
// entry is absent or the store errored.
func (c *PermissionCache) Get(ctx context.Context, roleID uuid.UUID) ([]string, bool) {
	keys, ok, err := c.store.Get(ctx, roleID)
	if err != nil {
		c.warn("permission cache get", err)
		ok = false
	}
	if ok {
		if c.metrics != nil {
			c.metrics.PermissionCacheHit()
		}
		return keys, true
	}
	if c.metrics != nil {
		c.metrics.PermissionCacheMiss()
	}
	return nil, false
}

// Put stores the resolved keys for a role.
func (c *PermissionCache) Put(ctx context.Context, roleID uuid.UUID, keys []string) {
	if err := c.store.Put(ctx, roleID, keys); err != nil {
		c.warn("permission cache put", err)
	}
}

// Invalidate drops the entry for a single role. Callers invoke it after the
// assignment transaction commits, never before.
func (c *PermissionCache) Invalidate(ctx context.Context, roleID uuid.UUID) {
	if err := c.store.Delete(ctx, roleID); err != nil {
		c.warn("permission cache invalidate", err)
	}
}

// InvalidateAll drops every entry. Used when a permission's identity fields
// change, since the cache carries no reverse index from permission to roles.
func (c *PermissionCache) InvalidateAll(ctx context.Context) {
	if err := c.store.Flush(ctx); err != nil {
		c.warn("permission cache flush", err)
	}
}

func (c *PermissionCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}

type memoryEntry struct {
	roleID uuid.UUID
	keys   []string
}

// MemoryStore is a bounded in-process store with least-recently-used
// eviction. No pack repository carries an LRU dependency, so the policy is
// implemented over container/list.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[uuid.UUID]*list.Element
	order      *list.List
	metrics    Metrics
}

// DefaultMaxEntries bounds the memory store when no limit is configured.
const DefaultMaxEntries = 1024

// NewMemoryStore constructs a MemoryStore holding at most maxEntries roles.
func NewMemoryStore(maxEntries int, metrics Metrics) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		entries:    make(map[uuid.UUID]*list.Element),
		order:      list.New(),
		metrics:    metrics,
	}
}

func (s *MemoryStore) Get(_ context.Context, roleID uuid.UUID) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[roleID]
	if !ok {
		return nil, false, nil
	}
	s.order.MoveToFront(el)
	entry := el.Value.(*memoryEntry)
	keys := make([]string, len(entry.keys))
	copy(keys, entry.keys)
	return keys, true, nil
}

func (s *MemoryStore) Put(_ context.Context, roleID uuid.UUID, keys []string) error {
	stored := make([]string, len(keys))
	copy(stored, keys)

	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[roleID]; ok {
		el.Value.(*memoryEntry).keys = stored
		s.order.MoveToFront(el)
		return nil
	}
	s.entries[roleID] = s.order.PushFront(&memoryEntry{roleID: roleID, keys: stored})
	for len(s.entries) > s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*memoryEntry).roleID)
		if s.metrics != nil {
			s.metrics.PermissionCacheEviction()
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[roleID]; ok {
		s.order.Remove(el)
		delete(s.entries, roleID)
	}
	return nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[uuid.UUID]*list.Element)
	s.order.Init()
	return nil
}

// Len reports the number of cached roles.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

const redisKeyPrefix = "role_permissions_"

// RedisStore keeps resolved permission sets in Redis so multiple instances
// share one invalidation domain.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, roleID uuid.UUID) ([]string, bool, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+roleID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var keys []string
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

func (s *RedisStore) Put(ctx context.Context, roleID uuid.UUID, keys []string) error {
	payload, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	// No TTL: entries live until invalidated.
	return s.client.Set(ctx, redisKeyPrefix+roleID.String(), payload, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, roleID uuid.UUID) error {
	return s.client.Del(ctx, redisKeyPrefix+roleID.String()).Err()
}

func (s *RedisStore) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
