package models

import (
	"time"

	id "landreg/pkg/domain"
)

// ApplicationStatus is the lifecycle state of a land application.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "pending"
	ApplicationStatusUnderReview ApplicationStatus = "under_review"
	ApplicationStatusConflict    ApplicationStatus = "conflict"
	ApplicationStatusApproved    ApplicationStatus = "approved"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
)

// Application is a submitted land application. Detection mutates only Status
// and DuplicateScore; everything else is owned by the submission workflow.
type Application struct {
	ID              id.ApplicationID  `json:"id"`
	ReferenceNumber string            `json:"reference_number"`
	NationalID      string            `json:"national_id"`
	TaxID           string            `json:"tax_id,omitempty"`
	ApplicantName   string            `json:"applicant_name"`
	LandLocation    string            `json:"land_location"`
	Status          ApplicationStatus `json:"status"`
	SubmittedAt     time.Time         `json:"submitted_at"`
	DuplicateScore  float64           `json:"duplicate_score"`
}

// IsRejected reports whether a prior claim was rejected. Rejected applications
// never block a new one.
func (a *Application) IsRejected() bool {
	return a.Status == ApplicationStatusRejected
}

// HasIdentity reports whether the application carries a national ID to match on.
func (a *Application) HasIdentity() bool {
	return a.NationalID != ""
}

// ApplyScreening records the outcome of a detection run. The application moves
// from pending to conflict only when the run produced at least one conflict;
// other statuses are left untouched.
func (a *Application) ApplyScreening(score float64, conflictsCreated int) {
	a.DuplicateScore = clampScore(score)
	if conflictsCreated > 0 && a.Status == ApplicationStatusPending {
		a.Status = ApplicationStatusConflict
	}
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
