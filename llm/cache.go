package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss indicates cache miss.
var ErrCacheMiss = errors.New("cache miss")

// CacheStats receives hit/miss observations from the cache read path.
type CacheStats interface {
	Hit()
	Miss()
}

// CacheEntry represents a cached response.
type CacheEntry struct {
	Response  *ChatResponse `json:"response"`
	CreatedAt time.Time     `json:"created_at"`
	HitCount  int           `json:"hit_count"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	LocalMaxSize int           `json:"local_max_size"`
	LocalTTL     time.Duration `json:"local_ttl"`
	RedisTTL     time.Duration `json:"redis_ttl"`
	EnableLocal  bool          `json:"enable_local"`
	EnableRedis  bool          `json:"enable_redis"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		LocalMaxSize: 512,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     1 * time.Hour,
		EnableLocal:  true,
		EnableRedis:  false,
	}
}

// ResponseCache provides local + optional Redis caching of completions.
type ResponseCache struct {
	local  *lruCache
	redis  *redis.Client
	config *CacheConfig
	stats  CacheStats
	logger *zap.Logger
}

// NewResponseCache creates a response cache. rdb may be nil when Redis is
// disabled.
func NewResponseCache(rdb *redis.Client, config *CacheConfig, logger *zap.Logger) *ResponseCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var local *lruCache
	if config.EnableLocal {
		local = newLRUCache(config.LocalMaxSize, config.LocalTTL)
	}

	return &ResponseCache{
		local:  local,
		redis:  rdb,
		config: config,
		logger: logger.With(zap.String("component", "llm_cache")),
	}
}

// SetStats registers a hit/miss observer. Every Get records exactly one
// observation against it.
func (c *ResponseCache) SetStats(stats CacheStats) {
	c.stats = stats
}

// Get retrieves a cached response.
func (c *ResponseCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	if c.config.EnableLocal && c.local != nil {
		if entry, ok := c.local.Get(key); ok {
			c.recordHit()
			return entry, nil
		}
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := c.redis.Get(ctx, redisKey(key)).Bytes()
		if err == nil {
			var entry CacheEntry
			if err := json.Unmarshal(data, &entry); err == nil {
				if c.config.EnableLocal && c.local != nil {
					c.local.Set(key, &entry)
				}
				c.recordHit()
				return &entry, nil
			}
		}
	}

	c.recordMiss()
	return nil, ErrCacheMiss
}

func (c *ResponseCache) recordHit() {
	if c.stats != nil {
		c.stats.Hit()
	}
}

func (c *ResponseCache) recordMiss() {
	if c.stats != nil {
		c.stats.Miss()
	}
}

// Set stores a response.
func (c *ResponseCache) Set(ctx context.Context, key string, resp *ChatResponse) error {
	entry := &CacheEntry{Response: resp, CreatedAt: time.Now()}

	if c.config.EnableLocal && c.local != nil {
		c.local.Set(key, entry)
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return c.redis.Set(ctx, redisKey(key), data, c.config.RedisTTL).Err()
	}

	return nil
}

// Key derives the cache key from the request fingerprint. Temperature is part
// of the key: two requests that may legitimately diverge must not collide.
func (c *ResponseCache) Key(req *ChatRequest) string {
	data, _ := json.Marshal(struct {
		Model       string    `json:"model"`
		Temperature float32   `json:"temperature"`
		Messages    []Message `json:"messages"`
	}{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    req.Messages,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

func redisKey(key string) string {
	return "researchflow:llm:" + key
}

// cachedProvider wraps a Provider with read-through caching.
type cachedProvider struct {
	inner Provider
	cache *ResponseCache
}

// WithCache wraps p so identical requests are served from cache.
func WithCache(p Provider, cache *ResponseCache) Provider {
	if cache == nil {
		return p
	}
	return &cachedProvider{inner: p, cache: cache}
}

func (c *cachedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	key := c.cache.Key(req)
	if entry, err := c.cache.Get(ctx, key); err == nil {
		resp := *entry.Response
		resp.Cached = true
		return &resp, nil
	}

	resp, err := c.inner.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, resp); err != nil {
		c.cache.logger.Warn("cache set failed", zap.Error(err))
	}
	return resp, nil
}

func (c *cachedProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return c.inner.HealthCheck(ctx)
}

func (c *cachedProvider) Name() string { return c.inner.Name() }

// lruCache is a simple LRU with TTL.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	head     *lruNode
	tail     *lruNode
}

type lruNode struct {
	key       string
	entry     *CacheEntry
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	if capacity <= 0 {
		capacity = 512
	}
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode),
	}
}

func (c *lruCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return nil, false
	}

	c.moveToHead(node)
	node.entry.HitCount++
	return node.entry, true
}

func (c *lruCache) Set(key string, entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.entry = entry
		node.expiresAt = time.Now().Add(c.ttl)
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{
		key:       key,
		entry:     entry,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.items[key] = node
	c.addToHead(node)
}

func (c *lruCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *lruCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *lruCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
