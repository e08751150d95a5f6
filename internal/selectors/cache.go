package selectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Store persists selector maps per domain.
type Store interface {
	Get(ctx context.Context, domain string) (SelectorMap, bool, error)
	Set(ctx context.Context, domain string, m SelectorMap) error
}

// CachedInferrer answers from a Store before falling back to the wrapped
// Inferrer. Store failures only cost a cache miss.
type CachedInferrer struct {
	next    Inferrer
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCachedInferrer(next Inferrer, store Store, m *metrics.Metrics, logger *slog.Logger) *CachedInferrer {
	return &CachedInferrer{
		next:    next,
		store:   store,
		logger:  logger.With("component", "selector_cache"),
		metrics: m,
	}
}

func (c *CachedInferrer) Infer(ctx context.Context, markup, domain string) (SelectorMap, error) {
	key := strings.ToLower(domain)

	cached, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("selector cache read failed", "domain", key, "error", err)
	}
	if ok {
		c.metrics.IncCache("hit")
		c.logger.Debug("selector cache hit", "domain", key)
		return cached, nil
	}
	c.metrics.IncCache("miss")

	m, err := c.next.Infer(ctx, markup, domain)
	if err != nil {
		return nil, err
	}

	// Only complete maps are cached; a partial reply is retried next time.
	if missing := m.Missing(); len(missing) > 0 {
		c.logger.Debug("selector map incomplete, not cached", "domain", key, "missing", missing)
		return m, nil
	}
	if err := c.store.Set(ctx, key, m); err != nil {
		c.logger.Warn("selector cache write failed", "domain", key, "error", err)
	}
	return m, nil
}

// MemoryStore is an in-process LRU with per-entry expiry.
type MemoryStore struct {
	lru *expirable.LRU[string, SelectorMap]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, SelectorMap](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, domain string) (SelectorMap, bool, error) {
	m, ok := s.lru.Get(domain)
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(m), true, nil
}

func (s *MemoryStore) Set(_ context.Context, domain string, m SelectorMap) error {
	s.lru.Add(domain, maps.Clone(m))
	return nil
}

const redisKeyPrefix = "review-scraper:selectors:"

// RedisStore shares selector maps between replicas.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, domain string) (SelectorMap, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+domain).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read selectors: %w", err)
	}

	var m SelectorMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("failed to decode selectors: %w", err)
	}
	return m, true, nil
}

func (s *RedisStore) Set(ctx context.Context, domain string, m SelectorMap) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode selectors: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+domain, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write selectors: %w", err)
	}
	return nil
}
