package s3

import (
	"context"
	"sync"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
)

// readCacheTTL bounds how stale a served index view may be. Writes from the
// export pipeline invalidate eagerly, so the TTL only matters for writes made
// by other processes.
const readCacheTTL = 30 * time.Second

type memoItem struct {
	value     any
	expiresAt time.Time
}

// CachingStore decorates a CacheStore with short-lived in-memory memoization
// of the hot read paths (type caches and the master view). Every write passes
// through and invalidates the affected keys.
type CachingStore struct {
	ports.CacheStore

	mu    sync.RWMutex
	items map[string]memoItem
}

// NewCachingStore wraps a store with read memoization.
func NewCachingStore(inner ports.CacheStore) *CachingStore {
	return &CachingStore{
		CacheStore: inner,
		items:      make(map[string]memoItem),
	}
}

func (c *CachingStore) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	if !ok || time.Now().After(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

func (c *CachingStore) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoItem{value: value, expiresAt: time.Now().Add(readCacheTTL)}
}

func (c *CachingStore) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
}

const masterKey = "master"

func typeKey(t assets.AssetType) string {
	return "type:" + string(t)
}

// GetTypeCache serves from memory when fresh, falling through to the store.
func (c *CachingStore) GetTypeCache(ctx context.Context, assetType assets.AssetType) ([]assets.CacheEntry, error) {
	if v, ok := c.get(typeKey(assetType)); ok {
		return v.([]assets.CacheEntry), nil
	}
	entries, err := c.CacheStore.GetTypeCache(ctx, assetType)
	if err != nil {
		return nil, err
	}
	c.set(typeKey(assetType), entries)
	return entries, nil
}

// SaveTypeCache writes through and drops the memoized type and master views.
func (c *CachingStore) SaveTypeCache(ctx context.Context, assetType assets.AssetType, entries []assets.CacheEntry) error {
	if err := c.CacheStore.SaveTypeCache(ctx, assetType, entries); err != nil {
		return err
	}
	c.invalidate(typeKey(assetType), masterKey)
	return nil
}

// GetMasterCache serves the full rolled-up view from memory when fresh.
// Filtered views always hit the store; they are rare and cheap relative to
// keeping per-filter keys coherent.
func (c *CachingStore) GetMasterCache(ctx context.Context, filter []assets.AssetType) (*assets.MasterCache, error) {
	if len(filter) > 0 {
		return c.CacheStore.GetMasterCache(ctx, filter)
	}
	if v, ok := c.get(masterKey); ok {
		return v.(*assets.MasterCache), nil
	}
	master, err := c.CacheStore.GetMasterCache(ctx, nil)
	if err != nil {
		return nil, err
	}
	c.set(masterKey, master)
	return master, nil
}
