package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"mediavault/logger"
)

// Descriptor identifies one upstream resource in the cache namespace.
// Variable parts (queries, ids, page numbers) are hashed so arbitrary user
// input never lands in a Redis key verbatim.
type Descriptor struct {
	Kind  string
	Parts []string
}

// Key derives the storage key for the descriptor.
func (d Descriptor) Key() string {
	sum := md5.Sum([]byte(strings.Join(d.Parts, ".")))
	return fmt.Sprintf("youtube:%s:%s", d.Kind, hex.EncodeToString(sum[:]))
}

// Value is what a producer hands back for caching.
type Value struct {
	// Payload is the serialized response body to cache and return.
	Payload []byte
	// TTL overrides the cache's default freshness window when positive.
	TTL time.Duration
	// HardExpiry marks the instant the payload stops working upstream
	// (e.g. a signed stream URL). Zero means the payload has no hard
	// lifetime beyond its TTL.
	HardExpiry time.Time
}

// Producer computes a value on a cache miss. It is invoked at most once per
// key across concurrent callers.
type Producer func(ctx context.Context) (*Value, error)

// entry is the stored envelope around a payload.
type entry struct {
	Payload    json.RawMessage `json:"payload"`
	StoredAt   time.Time       `json:"storedAt"`
	HardExpiry *time.Time      `json:"hardExpiry,omitempty"`
}

// ResourceCache is a read-through cache for upstream lookups. Entries carry
// an optional hard expiry on top of their TTL: a payload whose remaining
// hard lifetime is inside the safety margin is treated as a miss even if
// its TTL has not run out, so callers never receive an almost-dead URL.
type ResourceCache struct {
	store      Store
	defaultTTL time.Duration
	margin     time.Duration
	group      singleflight.Group
	now        func() time.Time
}

// NewResourceCache creates a cache over store. margin is the hard-expiry
// safety window; entries closer to their hard expiry than margin are
// considered stale.
func NewResourceCache(store Store, defaultTTL, margin time.Duration) *ResourceCache {
	return &ResourceCache{
		store:      store,
		defaultTTL: defaultTTL,
		margin:     margin,
		now:        time.Now,
	}
}

// GetOrCompute returns the cached payload for desc, or runs produce to fill
// the cache. The boolean reports whether the payload came from the cache.
// forceRefresh discards any cached entry before computing; concurrent
// callers for the same descriptor share one producer run.
func (c *ResourceCache) GetOrCompute(ctx context.Context, desc Descriptor, forceRefresh bool, produce Producer) ([]byte, bool, error) {
	key := desc.Key()

	if forceRefresh {
		if err := c.store.Delete(ctx, key); err != nil {
			logger.Warn("failed to evict cache entry",
				logger.String("key", key), logger.ErrorField(err))
		}
	} else if payload := c.lookup(ctx, key); payload != nil {
		return payload, true, nil
	}

	type outcome struct {
		payload []byte
		cached  bool
	}
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while this one waited
		// for the flight slot.
		if !forceRefresh {
			if payload := c.lookup(ctx, key); payload != nil {
				return outcome{payload: payload, cached: true}, nil
			}
		}

		value, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, value)
		return outcome{payload: value.Payload}, nil
	})
	if err != nil {
		return nil, false, err
	}

	out := v.(outcome)
	return out.payload, out.cached || shared, nil
}

// lookup fetches and validates one entry. Any problem (backend error,
// corrupt envelope, hard expiry inside the margin) reads as a miss.
func (c *ResourceCache) lookup(ctx context.Context, key string) []byte {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed",
			logger.String("key", key), logger.ErrorField(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		logger.Warn("dropping corrupt cache entry",
			logger.String("key", key), logger.ErrorField(err))
		c.evict(ctx, key)
		return nil
	}

	if e.HardExpiry != nil && c.now().After(e.HardExpiry.Add(-c.margin)) {
		c.evict(ctx, key)
		return nil
	}
	return e.Payload
}

func (c *ResourceCache) put(ctx context.Context, key string, value *Value) {
	ttl := value.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	e := entry{Payload: value.Payload, StoredAt: c.now()}
	if !value.HardExpiry.IsZero() {
		e.HardExpiry = &value.HardExpiry
		// Never let the TTL outlive the usable window.
		if usable := value.HardExpiry.Add(-c.margin).Sub(c.now()); usable < ttl {
			ttl = usable
		}
	}
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		logger.Warn("failed to encode cache entry",
			logger.String("key", key), logger.ErrorField(err))
		return
	}
	// A failed write only costs a recompute next time.
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		logger.Warn("cache write failed",
			logger.String("key", key), logger.ErrorField(err))
	}
}

func (c *ResourceCache) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		logger.Warn("failed to evict cache entry",
			logger.String("key", key), logger.ErrorField(err))
	}
}
