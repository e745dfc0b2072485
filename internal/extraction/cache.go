package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"landreg/internal/detection/metrics"
	"landreg/internal/detection/ports"
	"landreg/pkg/platform/circuit"
)

const textKeyPrefix = "landreg:text:"

// CachedExtractor keeps extracted text in Redis. Uploaded files are immutable,
// so a document's path and media type identify its text. Cache errors fall
// through to the wrapped extractor.
type CachedExtractor struct {
	next    ports.TextExtractor
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	breaker *circuit.Breaker
}

type CacheOption func(*CachedExtractor)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedExtractor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CachedExtractor) {
		c.metrics = m
	}
}

// WithCacheBreaker replaces the default breaker guarding Redis.
func WithCacheBreaker(b *circuit.Breaker) CacheOption {
	return func(c *CachedExtractor) {
		if b != nil {
			c.breaker = b
		}
	}
}

func NewCachedExtractor(next ports.TextExtractor, client *redis.Client, ttl time.Duration, opts ...CacheOption) *CachedExtractor {
	c := &CachedExtractor{
		next:    next,
		client:  client,
		ttl:     ttl,
		logger:  slog.Default(),
		breaker: circuit.New("text-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedExtractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	if !c.breaker.Allow() {
		c.metrics.IncrementCacheMiss()
		return c.next.Extract(ctx, path, mimeType)
	}

	key := cacheKey(path, mimeType)
	text, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.recordSuccess(ctx)
		c.metrics.IncrementCacheHit()
		return text, nil
	case errors.Is(err, redis.Nil):
		c.recordSuccess(ctx)
		c.metrics.IncrementCacheMiss()
	default:
		c.metrics.IncrementCacheMiss()
		c.recordFailure(ctx, "read", err)
	}

	text, err = c.next.Extract(ctx, path, mimeType)
	if err != nil {
		return "", err
	}
	if c.breaker.IsOpen() {
		return text, nil
	}
	if err := c.client.Set(ctx, key, text, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, "write", err)
	}
	return text, nil
}

func (c *CachedExtractor) recordFailure(ctx context.Context, op string, err error) {
	c.logger.WarnContext(ctx, "text cache "+op+" failed", "error", err)
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "text cache circuit opened; extracting without cache", "breaker", c.breaker.Name())
	}
}

func (c *CachedExtractor) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "text cache circuit closed", "breaker", c.breaker.Name())
	}
}

func cacheKey(path, mimeType string) string {
	sum := sha256.Sum256([]byte(mimeType + "\x00" + path))
	return textKeyPrefix + hex.EncodeToString(sum[:])
}
