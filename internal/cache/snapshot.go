package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"barbershop/internal/model"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "constraints:"

// SnapshotCache stores constraint snapshots per staff member.
type SnapshotCache interface {
	Get(ctx context.Context, staffID string) (*model.Snapshot, bool, error)
	Set(ctx context.Context, staffID string, snap *model.Snapshot) error
	// Delete drops the given entries, or all of them when no id is given.
	Delete(ctx context.Context, staffIDs ...string) error
}

// RedisSnapshotCache keeps snapshots as JSON with a TTL.
type RedisSnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSnapshotCache(rdb *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{rdb: rdb, ttl: ttl}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, staffID string) (*model.Snapshot, bool, error) {
	val, err := c.rdb.Get(ctx, keyPrefix+staffID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot %s: %w", staffID, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		// Unreadable entries are treated as misses and overwritten later.
		return nil, false, nil
	}
	return &snap, true, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, staffID string, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+staffID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot %s: %w", staffID, err)
	}
	return nil
}

func (c *RedisSnapshotCache) Delete(ctx context.Context, staffIDs ...string) error {
	if len(staffIDs) > 0 {
		keys := make([]string, 0, len(staffIDs))
		for _, id := range staffIDs {
			keys = append(keys, keyPrefix+id)
		}
		return c.rdb.Del(ctx, keys...).Err()
	}

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

type memoryEntry struct {
	snap    *model.Snapshot
	expires time.Time
}

// MemorySnapshotCache is a process-local cache used when Redis is not configured.
type MemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	return &MemorySnapshotCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemorySnapshotCache) Get(_ context.Context, staffID string) (*model.Snapshot, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[staffID]
	c.mu.RUnlock()
	if !ok || (c.ttl > 0 && !c.now().Before(e.expires)) {
		return nil, false, nil
	}
	return e.snap, true, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, staffID string, snap *model.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[staffID] = memoryEntry{snap: snap, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemorySnapshotCache) Delete(_ context.Context, staffIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(staffIDs) == 0 {
		c.entries = make(map[string]memoryEntry)
		return nil
	}
	for _, id := range staffIDs {
		delete(c.entries, id)
	}
	return nil
}
