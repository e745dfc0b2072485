package models

import (
	"fmt"
	"time"

	id "landreg/pkg/domain"
	dErrors "landreg/pkg/domain-errors"
)

// ConflictType enumerates what kind of collision was detected.
type ConflictType string

const (
	ConflictTypeIdentityDuplicate ConflictType = "identity_duplicate"
	ConflictTypeDocumentDuplicate ConflictType = "document_duplicate"
	ConflictTypeSpatialOverlap    ConflictType = "spatial_overlap"
	ConflictTypeLocationDuplicate ConflictType = "location_duplicate"
)

// Severity is the business-impact tier, independent of confidence.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConflictStatus tracks review state.
type ConflictStatus string

const (
	ConflictStatusUnresolved ConflictStatus = "unresolved"
	ConflictStatusResolved   ConflictStatus = "resolved"
)

// Conflict asserts that an application collides with another application, a
// parcel, or a document.
//
// Invariants:
//   - At most one conflict exists per (ApplicationID, Type, CounterpartKey)
//   - Confidence is within [0, 1]
//   - ResolvedAt is set iff Status is resolved, and is strictly after CreatedAt
type Conflict struct {
	ID                  id.ConflictID    `json:"id"`
	ApplicationID       id.ApplicationID `json:"application_id"`
	ConflictingParcelID *id.ParcelID     `json:"conflicting_parcel_id,omitempty"`
	Type                ConflictType     `json:"conflict_type"`
	CounterpartKey      CounterpartKey   `json:"counterpart_key"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Confidence          float64          `json:"confidence_score"`
	Severity            Severity         `json:"severity"`
	DetectedBySystem    bool             `json:"detected_by_system"`
	Status              ConflictStatus   `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	ResolvedAt          *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy          *id.UserID       `json:"resolved_by,omitempty"`
}

// IsResolved reports whether a reviewer has closed the conflict.
func (c *Conflict) IsResolved() bool {
	return c.Status == ConflictStatusResolved
}

// CanResolve checks whether the conflict may transition to resolved.
func (c *Conflict) CanResolve() error {
	if c.IsResolved() {
		return dErrors.New(dErrors.CodeInvariantViolation, "conflict is already resolved")
	}
	return nil
}

// ApplyResolution marks the conflict resolved. The timestamp is nudged forward
// when the clock has not advanced past CreatedAt at storage precision.
func (c *Conflict) ApplyResolution(now time.Time, by *id.UserID) {
	if !now.After(c.CreatedAt) {
		now = c.CreatedAt.Add(time.Microsecond)
	}
	c.Status = ConflictStatusResolved
	c.ResolvedAt = &now
	c.ResolvedBy = by
}

// CounterpartKey identifies what an application collided with. Together with the
// application and conflict type it forms the deduplication key.
type CounterpartKey string

// ApplicationCounterpart keys a conflict against another application.
func ApplicationCounterpart(other id.ApplicationID) CounterpartKey {
	return CounterpartKey("application:" + other.String())
}

// ParcelCounterpart keys a conflict against a registered parcel.
func ParcelCounterpart(parcel id.ParcelID) CounterpartKey {
	return CounterpartKey("parcel:" + parcel.String())
}

// DocumentCounterpart keys a document conflict by the other application and the
// document category, so one application pair yields one conflict per category.
func DocumentCounterpart(other id.ApplicationID, documentType string) CounterpartKey {
	return CounterpartKey(fmt.Sprintf("document:%s:%s", other.String(), documentType))
}
