package httptransport

import (
	"time"

	"landreg/internal/registry/models"
)

// DetectionResponse is returned by both detection triggers. Degraded is set
// when the run failed and nothing was recorded; the caller may retry.
type DetectionResponse struct {
	ApplicationID   string             `json:"application_id"`
	DuplicatesFound int                `json:"duplicates_found"`
	Conflicts       []ConflictResponse `json:"conflicts"`
	Degraded        bool               `json:"degraded,omitempty"`
	Error           string             `json:"error,omitempty"`
}

type ConflictResponse struct {
	ID                  string     `json:"id"`
	Type                string     `json:"conflict_type"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Confidence          float64    `json:"confidence_score"`
	Severity            string     `json:"severity"`
	Status              string     `json:"status"`
	ConflictingParcelID string     `json:"conflicting_parcel_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
}

// ResolveResponse is returned by POST /conflicts/{id}/resolve.
type ResolveResponse struct {
	ConflictID string `json:"conflict_id"`
	Resolved   bool   `json:"resolved"`
}

func fromConflicts(appID string, cs []*models.Conflict) DetectionResponse {
	out := DetectionResponse{
		ApplicationID:   appID,
		DuplicatesFound: len(cs),
		Conflicts:       make([]ConflictResponse, 0, len(cs)),
	}
	for _, c := range cs {
		r := ConflictResponse{
			ID:          c.ID.String(),
			Type:        string(c.Type),
			Title:       c.Title,
			Description: c.Description,
			Confidence:  c.Confidence,
			Severity:    string(c.Severity),
			Status:      string(c.Status),
			CreatedAt:   c.CreatedAt,
			ResolvedAt:  c.ResolvedAt,
		}
		if c.ConflictingParcelID != nil {
			r.ConflictingParcelID = c.ConflictingParcelID.String()
		}
		out.Conflicts = append(out.Conflicts, r)
	}
	return out
}
