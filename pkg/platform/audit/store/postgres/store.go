package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "landreg/pkg/domain"
	audit "landreg/pkg/platform/audit"
	txcontext "landreg/pkg/platform/tx"
)

// Store implements audit.Store. Each entry is written to audit_log for querying
// and to audit_outbox for the Kafka relay, in one transaction.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON document published to Kafka.
type outboxPayload struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	ActorID   string         `json:"actor_id,omitempty"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Append writes the entry and its outbox row. When ctx already carries a
// transaction both rows join it; otherwise a short transaction is opened.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if tx, ok := txcontext.From(ctx); ok {
		return s.append(ctx, tx, entry)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.append(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

func (s *Store) append(ctx context.Context, tx *sql.Tx, entry audit.Entry) error {
	oldValues, err := marshalValues(entry.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalValues(entry.NewValues)
	if err != nil {
		return err
	}

	var actor *uuid.UUID
	if entry.ActorID != nil {
		u := uuid.UUID(*entry.ActorID)
		actor = &u
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, action, category, table_name, record_id, actor_id,
			old_values, new_values, request_id, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		string(entry.Action),
		string(entry.Category()),
		entry.TableName,
		entry.RecordID,
		actor,
		oldValues,
		newValues,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload := outboxPayload{
		ID:        entry.ID.String(),
		Category:  string(entry.Category()),
		Action:    string(entry.Action),
		TableName: entry.TableName,
		RecordID:  entry.RecordID,
		OldValues: entry.OldValues,
		NewValues: entry.NewValues,
		RequestID: entry.RequestID,
		Timestamp: entry.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if actor != nil {
		payload.ActorID = actor.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		entry.TableName,
		entry.RecordID,
		string(entry.Action),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByRecord returns entries for a row, oldest first.
func (s *Store) ListByRecord(ctx context.Context, tableName, recordID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, table_name, record_id, actor_id,
			   old_values, new_values, request_id, timestamp
		FROM audit_log
		WHERE table_name = $1 AND record_id = $2
		ORDER BY timestamp ASC
	`, tableName, recordID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry     audit.Entry
			action    string
			actor     *uuid.UUID
			oldValues []byte
			newValues []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&action,
			&entry.TableName,
			&entry.RecordID,
			&actor,
			&oldValues,
			&newValues,
			&entry.RequestID,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		if actor != nil {
			uid := id.UserID(*actor)
			entry.ActorID = &uid
		}
		if entry.OldValues, err = unmarshalValues(oldValues); err != nil {
			return nil, err
		}
		if entry.NewValues, err = unmarshalValues(newValues); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// ClaimPending locks up to limit unpublished rows, hands them to publish, and
// marks them published when publish succeeds. Rows locked by another relay are
// skipped. Returns the number of rows published.
func (s *Store) ClaimPending(ctx context.Context, limit int, publish func(context.Context, []audit.OutboxMessage) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox entries: %w", err)
	}
	var batch []audit.OutboxMessage
	for rows.Next() {
		var m audit.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox entries: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	publishedAt := time.Now()
	for _, m := range batch {
		if _, err := tx.ExecContext(ctx,
			`UPDATE audit_outbox SET published_at = $2 WHERE id = $1`,
			m.ID, publishedAt,
		); err != nil {
			return 0, fmt.Errorf("mark outbox entry published: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(batch), nil
}

// marshalValues returns an untyped nil for absent payloads so the driver binds NULL.
func marshalValues(values map[string]any) (any, error) {
	if values == nil {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	return b, nil
}

func unmarshalValues(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("unmarshal audit values: %w", err)
	}
	return values, nil
}
