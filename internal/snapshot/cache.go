package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is the Redis-backed adapter used by CACHE mode (spec.md §4.1
// step 2: "CACHE = copy the latest existing snapshot forward"). Shape
// and error-wrapping are grounded on the teacher's RedisCache
// (artifacts/handoff staging datafacade/cache/redis_cache.go), trimmed
// to the one get/set pair this build path needs.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache constructs a Cache against the given Redis address.
func NewCache(addr, password string, db int) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		prefix: "chakraops:snapshot:",
	}
}

// rowsKey is the cache key holding the most recently built row set, so
// a CACHE-mode build can "copy the latest existing snapshot forward"
// without re-touching Postgres for the source data.
func (c *Cache) rowsKey() string { return c.prefix + "latest_rows" }

// Get returns the rows cached from the last successful build, or
// (nil, false) on a cache miss.
func (c *Cache) Get(ctx context.Context) ([]Row, bool, error) {
	val, err := c.client.Get(ctx, c.rowsKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("snapshot: cache get: %w", err)
	}

	var rows []Row
	if err := json.Unmarshal(val, &rows); err != nil {
		return nil, false, fmt.Errorf("snapshot: cache unmarshal: %w", err)
	}
	return rows, true, nil
}

// Set stores rows as the latest built snapshot, for the next CACHE-mode
// build, or an AUTO-mode build with no CSV file, to copy forward.
func (c *Cache) Set(ctx context.Context, rows []Row, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("snapshot: cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.rowsKey(), data, ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: cache set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
