// Package publisher emits audit entries to a Store, synchronously by default or
// through a bounded buffer drained by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "landreg/pkg/platform/audit"
	"landreg/pkg/requestcontext"
)

// ErrBufferFull is returned in async mode when the buffer cannot accept an entry.
var ErrBufferFull = errors.New("audit buffer full")

const drainTimeout = 5 * time.Second

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer chan audit.Entry
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with a buffer of the given size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Entry, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit fills in ID, timestamp, actor and request ID from ctx when unset, then
// persists the entry.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if entry.ActorID == nil {
		if actor := requestcontext.Actor(ctx); !actor.IsNil() {
			entry.ActorID = &actor
		}
	}

	if p.buffer == nil {
		return p.store.Append(ctx, entry)
	}

	select {
	case p.buffer <- entry:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrBufferFull
}

// List returns entries recorded against a row.
func (p *Publisher) List(ctx context.Context, tableName, recordID string) ([]audit.Entry, error) {
	return p.store.ListByRecord(ctx, tableName, recordID)
}

// Close drains the async buffer. Safe to call more than once.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for entry := range p.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := p.store.Append(ctx, entry); err != nil {
			p.logger.Error("failed to persist audit entry",
				"action", entry.Action,
				"record_id", entry.RecordID,
				"error", err,
			)
		}
		cancel()
	}
}
