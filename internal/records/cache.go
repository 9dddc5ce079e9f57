package records

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/metrics"
)

// Cache stores records by ID. Get reports a miss with ok == false and a nil
// error.
type Cache interface {
	Get(ctx context.Context, id string) (rec Record, ok bool, err error)
	Set(ctx context.Context, rec Record) error
}

// CachedStore is a read-through cache in front of a Store. On a miss the
// record is read from the source and written back. Not-found results are
// never cached, and a failing cache falls through to the source.
type CachedStore struct {
	source Store
	cache  Cache
	log    zerolog.Logger
}

// NewCachedStore wraps source with cache.
func NewCachedStore(source Store, cache Cache, log zerolog.Logger) *CachedStore {
	return &CachedStore{
		source: source,
		cache:  cache,
		log:    log.With().Str("component", "record_cache").Logger(),
	}
}

// Get implements Store.
func (s *CachedStore) Get(ctx context.Context, id string) (Record, error) {
	rec, ok, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		metrics.RecordCacheLookupsTotal.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("restaurant_id", id).Msg("cache read failed, using source")
	case ok:
		metrics.RecordCacheLookupsTotal.WithLabelValues("hit").Inc()
		return rec, nil
	default:
		metrics.RecordCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	rec, err = s.source.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}

	if err := s.cache.Set(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("restaurant_id", id).Msg("cache write failed")
	}
	return rec, nil
}

// redisAPI is the subset of the go-redis client used by RedisCache.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores records as JSON strings with a TTL.
type RedisCache struct {
	client redisAPI
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache over client. Keys are "restaurant:<id>".
func NewRedisCache(client redisAPI, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "restaurant:", ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, id string) (Record, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode cached record: %w", err)
	}
	return rec, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+rec.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

type lruItem struct {
	rec     Record
	expires time.Time
}

// LRUCache is a size-bounded in-memory cache with least recently used
// eviction. Entries older than ttl are treated as misses.
type LRUCache struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
}

// NewLRUCache creates an LRUCache holding at most maxSize records. A zero ttl
// disables expiry.
func NewLRUCache(maxSize int, ttl time.Duration) (*LRUCache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRUCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}, nil
}

// Get implements Cache.
func (c *LRUCache) Get(_ context.Context, id string) (Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return Record{}, false, nil
	}
	item := elem.Value.(*lruItem)
	if !item.expires.IsZero() && c.now().After(item.expires) {
		c.ll.Remove(elem)
		delete(c.items, id)
		return Record{}, false, nil
	}
	c.ll.MoveToFront(elem)
	return item.rec, true, nil
}

// Set implements Cache.
func (c *LRUCache) Set(_ context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if elem, ok := c.items[rec.ID]; ok {
		elem.Value = &lruItem{rec: rec, expires: expires}
		c.ll.MoveToFront(elem)
		return nil
	}

	c.items[rec.ID] = c.ll.PushFront(&lruItem{rec: rec, expires: expires})
	if c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem).rec.ID)
	}
	return nil
}

// Len returns the number of cached records.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// NewCache builds the cache selected by cfg.Type. It returns a nil Cache for
// "none" and a close function for any connection it opened.
func NewCache(ctx context.Context, cfg config.CacheConfig, log zerolog.Logger) (Cache, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "none", "":
		return nil, noop, nil

	case "memory":
		c, err := NewLRUCache(cfg.Size, cfg.TTL)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("redis_address", cfg.RedisAddr).Msg("record cache connected to redis")
		return NewRedisCache(rdb, cfg.TTL), rdb.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
