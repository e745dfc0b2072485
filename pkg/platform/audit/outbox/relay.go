// Package outbox relays audit entries from the transactional outbox to the
// event stream consumed by external reporting.
package outbox

import (
	"context"
	"log/slog"
	"time"

	audit "landreg/pkg/platform/audit"
)

// Source hands out unpublished outbox messages. Messages are marked published
// only when the publish callback returns nil.
type Source interface {
	ClaimPending(ctx context.Context, limit int, publish func(context.Context, []audit.OutboxMessage) error) (int, error)
}

// Producer writes a batch of records to a topic, returning after the broker acks.
type Producer interface {
	Produce(ctx context.Context, topic string, records []Record) error
}

// Record is one keyed message bound for the stream.
type Record struct {
	Key   []byte
	Value []byte
}

const (
	defaultBatchSize = 100
	defaultInterval  = 2 * time.Second
)

type Relay struct {
	source    Source
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(source Source, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		producer:  producer,
		topic:     topic,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RelayOnce publishes at most one batch and returns how many messages went out.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return r.source.ClaimPending(ctx, r.batchSize, func(ctx context.Context, batch []audit.OutboxMessage) error {
		records := make([]Record, len(batch))
		for i, m := range batch {
			// Keyed by record so all entries for one application land on one partition.
			records[i] = Record{Key: []byte(m.AggregateID), Value: m.Payload}
		}
		return r.producer.Produce(ctx, r.topic, records)
	})
}

// Run relays until ctx is cancelled. Full batches are followed immediately by
// another pass; otherwise the relay waits for the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "audit outbox relay failed",
				"topic", r.topic,
				"error", err,
			)
		} else if n > 0 {
			r.logger.DebugContext(ctx, "relayed audit entries", "count", n, "topic", r.topic)
		}
		if err == nil && n == r.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
