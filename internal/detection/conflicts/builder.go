// Package conflicts turns detected matches into persisted conflict records,
// at most one per (application, conflict type, counterpart).
package conflicts

import (
	"context"
	"errors"
	"fmt"

	"landreg/internal/detection/ports"
	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	"landreg/pkg/platform/sentinel"
	"landreg/pkg/requestcontext"
)

// Match is a detected collision before it becomes a conflict record.
type Match struct {
	ApplicationID id.ApplicationID
	Type          models.ConflictType
	Counterpart   models.CounterpartKey
	ParcelID      *id.ParcelID
	Title         string
	Description   string
	Confidence    float64
	Severity      models.Severity
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Exists reports whether a conflict with the match's key is already recorded.
func (b *Builder) Exists(ctx context.Context, store ports.Store, m Match) (bool, error) {
	_, err := store.FindConflictByKey(ctx, m.ApplicationID, m.Type, m.Counterpart)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("look up conflict %s: %w", m.Counterpart, err)
	}
}

// Build inserts a conflict for m through store, which must be the store of the
// caller's open transaction. It returns false without writing when an
// equivalent conflict exists, including one inserted concurrently.
func (b *Builder) Build(ctx context.Context, store ports.Store, m Match) (*models.Conflict, bool, error) {
	exists, err := b.Exists(ctx, store, m)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}

	conflict := &models.Conflict{
		ID:                  id.NewConflictID(),
		ApplicationID:       m.ApplicationID,
		ConflictingParcelID: m.ParcelID,
		Type:                m.Type,
		CounterpartKey:      m.Counterpart,
		Title:               m.Title,
		Description:         m.Description,
		Confidence:          clampConfidence(m.Confidence),
		Severity:            m.Severity,
		DetectedBySystem:    true,
		Status:              models.ConflictStatusUnresolved,
		CreatedAt:           requestcontext.Now(ctx),
	}
	if err := store.InsertConflict(ctx, conflict); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert conflict %s: %w", m.Counterpart, err)
	}
	return conflict, true, nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
