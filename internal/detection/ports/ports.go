// Package ports declares what the detection engine needs from the outside:
// a transactional registry store, a text extractor, and an audit sink.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks TextExtractor,AuditPublisher

import (
	"context"

	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	audit "landreg/pkg/platform/audit"
)

// Store is the registry view used by detection. Lookups of a single entity
// return sentinel.ErrNotFound when absent; InsertConflict returns
// sentinel.ErrConflict when the (application, type, counterpart) key exists.
type Store interface {
	FindApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListApplicationsByIdentity(ctx context.Context, nationalID, taxID string, exclude id.ApplicationID) ([]*models.Application, error)
	ListParcelsByOwner(ctx context.Context, nationalID string) ([]*models.Parcel, error)
	ListParcels(ctx context.Context, limit int) ([]*models.Parcel, error)

	ListDocumentsByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error)
	ListDocumentsByHash(ctx context.Context, hash string, exclude id.ApplicationID) ([]*models.Document, error)
	ListDocumentsByType(ctx context.Context, documentType string, exclude id.ApplicationID, limit int) ([]*models.Document, error)

	FindConflict(ctx context.Context, conflictID id.ConflictID) (*models.Conflict, error)
	FindConflictByKey(ctx context.Context, appID id.ApplicationID, conflictType models.ConflictType, key models.CounterpartKey) (*models.Conflict, error)
	InsertConflict(ctx context.Context, conflict *models.Conflict) error
	UpdateConflictResolution(ctx context.Context, conflict *models.Conflict) error
	UpdateApplicationScreening(ctx context.Context, app *models.Application) error
}

// Tx runs fn in one atomic unit. Returning an error from fn rolls back every
// write made through the store handed to fn.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, path, mimeType string) (string, error)
}

// AuditPublisher appends audit entries. Failures are non-fatal to callers.
type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}
