package main

import (
	"context"
	"database/sql"
	"fmt"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/documents"
	detectionmetrics "landreg/internal/detection/metrics"
	"landreg/internal/detection/ports"
	"landreg/internal/detection/service"
	"landreg/internal/extraction"
	"landreg/internal/platform/postgres"
	"landreg/internal/platform/redis"
	"landreg/internal/platform/tracing"
	"landreg/internal/registry/store"
	"landreg/pkg/platform/audit/publisher"
	auditpostgres "landreg/pkg/platform/audit/store/postgres"
)

// engine holds the shared dependencies of the detection commands.
type engine struct {
	db        *sql.DB
	redis     *redis.Client
	store     *store.PostgresStore
	publisher *publisher.Publisher
	metrics   *detectionmetrics.Metrics
	service   *service.Service
}

// openEngine connects to Postgres (and Redis when configured) and assembles
// the detection service.
func openEngine(ctx context.Context) (*engine, error) {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	rt := &engine{
		db:      db,
		store:   store.NewPostgres(db),
		metrics: detectionmetrics.New(),
	}

	rt.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		// the text cache is optional
		log.WarnContext(ctx, "redis unavailable, extracting without cache", "error", err)
	}

	rt.publisher = publisher.NewPublisher(auditpostgres.New(db), publisher.WithLogger(log))

	builder := conflicts.NewBuilder()
	scanner := documents.NewScanner(rt.extractor(), builder,
		documents.WithLogger(log),
		documents.WithMetrics(rt.metrics),
		documents.WithThreshold(cfg.Detection.ContentThreshold),
		documents.WithCandidateLimit(cfg.Detection.CandidateLimit),
		documents.WithConcurrency(cfg.Detection.ExtractConcurrency),
		documents.WithEvidentiaryTypes(cfg.Detection.EvidentiaryTypes),
	)
	rt.service = service.New(store.NewPostgresTx(db, cfg.Database.TxTimeout), scanner, builder,
		service.WithLogger(log),
		service.WithMetrics(rt.metrics),
		service.WithTracer(tracing.Tracer()),
		service.WithAuditPublisher(rt.publisher),
		service.WithRunTimeout(cfg.Detection.RunTimeout),
	)
	return rt, nil
}

// extractor layers the upload reader with rate limiting and, when Redis is
// configured, the text cache.
func (rt *engine) extractor() ports.TextExtractor {
	var ex ports.TextExtractor = extraction.NewFileExtractor(cfg.Detection.UploadDir)
	ex = extraction.NewRateLimitedExtractor(ex, cfg.Detection.ExtractRate, cfg.Detection.ExtractBurst)
	if rt.redis != nil {
		ex = extraction.NewCachedExtractor(ex, rt.redis.Client, cfg.Redis.TextCacheTTL,
			extraction.WithCacheLogger(log),
			extraction.WithCacheMetrics(rt.metrics),
		)
	}
	return ex
}

// ready pings every configured backend.
func (rt *engine) ready(ctx context.Context) error {
	if err := rt.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if rt.redis != nil {
		if err := rt.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (rt *engine) Close() {
	if err := rt.publisher.Close(); err != nil {
		log.Warn("close audit publisher", "error", err)
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	_ = rt.db.Close()
}
