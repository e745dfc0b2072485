package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "landreg/pkg/domain"
)

// EventCategory classifies audit entries by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers reviewer decisions with legal significance.
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers routine system activity such as detection runs.
	CategoryOperations EventCategory = "operations"
)

// Action names the audited operation.
type Action string

const (
	ActionDetectDuplicates        Action = "detect_duplicates"
	ActionDetectDocumentConflicts Action = "detect_document_conflicts"
	ActionResolveDuplicate        Action = "resolve_duplicate"
)

var actionCategories = map[Action]EventCategory{
	ActionDetectDuplicates:        CategoryOperations,
	ActionDetectDocumentConflicts: CategoryOperations,
	ActionResolveDuplicate:        CategoryCompliance,
}

// Category returns the category for the action. Unknown actions default to operations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Tables referenced by audit entries.
const (
	TableApplications = "land_applications"
	TableConflicts    = "land_conflicts"
)

// Entry is an immutable record of a detection or resolution action with its
// before/after payload.
type Entry struct {
	ID        uuid.UUID
	Action    Action
	TableName string
	RecordID  string
	ActorID   *id.UserID
	OldValues map[string]any
	NewValues map[string]any
	RequestID string
	Timestamp time.Time
}

// Category derives the category from the action.
func (e Entry) Category() EventCategory {
	return e.Action.Category()
}

// Store is the append-only sink for audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByRecord(ctx context.Context, tableName, recordID string) ([]Entry, error)
}

// OutboxMessage is an audit entry awaiting publication to the event stream.
type OutboxMessage struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
