package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

const cacheNamespace = "academy-ledger:"

// CacheRepository stores JSON read models in Redis under a service namespace.
type CacheRepository struct {
	client *redis.Client
}

// NewCacheRepository constructs a cache repository. A nil client turns every call into a miss.
func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

// Get retrieves and unmarshals the cached value into dest.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, cacheNamespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// maxVersionedWriteAttempts bounds WATCH retries when another writer touches the key.
const maxVersionedWriteAttempts = 3

// SetIfNewer stores value with ttl unless the cached entry already carries a version at least
// as high. value must encode to a JSON object with a top-level "version" field. The compare and
// the write run under WATCH, so a slow reader cannot overwrite a newer entry.
func (r *CacheRepository) SetIfNewer(ctx context.Context, key string, version int, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	namespaced := cacheNamespace + key

	write := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, namespaced).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if cachedVersion(current) >= version {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, namespaced, payload, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxVersionedWriteAttempts; attempt++ {
		err = r.client.Watch(ctx, write, namespaced)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// cachedVersion reads the version of a stored payload. Unreadable payloads report 0 so they get replaced.
func cachedVersion(raw []byte) int {
	var entry struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return 0
	}
	return entry.Version
}

// Delete removes the given keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = cacheNamespace + key
	}
	if err := r.client.Del(ctx, namespaced...).Err(); err != nil {
		return fmt.Errorf("redis delete %v: %w", keys, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
