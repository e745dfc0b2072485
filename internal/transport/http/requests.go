package httptransport

import (
	"strings"

	id "landreg/pkg/domain"
)

// ResolveRequest is the optional body of POST /conflicts/{id}/resolve.
type ResolveRequest struct {
	ResolvedBy string `json:"resolved_by"`

	resolvedBy *id.UserID
}

// Validate parses resolved_by when present.
func (r *ResolveRequest) Validate() error {
	r.ResolvedBy = strings.TrimSpace(r.ResolvedBy)
	if r.ResolvedBy == "" {
		return nil
	}
	user, err := id.ParseUserID(r.ResolvedBy)
	if err != nil {
		return err
	}
	r.resolvedBy = &user
	return nil
}
