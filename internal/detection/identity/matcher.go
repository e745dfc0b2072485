// Package identity finds applications and parcels that share the applicant's
// national ID or tax ID.
package identity

import (
	"context"
	"fmt"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/ports"
	"landreg/internal/registry/models"
)

// Identity matches are near-certain but not absolute: identical IDs on two
// records are occasionally clerical re-entry rather than fraud.
const (
	Confidence = 0.95
	Severity   = models.SeverityHigh
)

// Result holds the candidates for one application.
type Result struct {
	Applications []*models.Application
	Parcels      []*models.Parcel
}

// Empty reports whether nothing matched.
func (r Result) Empty() bool {
	return len(r.Applications) == 0 && len(r.Parcels) == 0
}

type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match returns other non-rejected applications sharing app's national ID (or
// tax ID when present), and parcels owned under app's national ID that are not
// linked to app itself. An application without a national ID yields an empty
// result without querying.
func (m *Matcher) Match(ctx context.Context, store ports.Store, app *models.Application) (Result, error) {
	if !app.HasIdentity() {
		return Result{}, nil
	}

	apps, err := store.ListApplicationsByIdentity(ctx, app.NationalID, app.TaxID, app.ID)
	if err != nil {
		return Result{}, fmt.Errorf("match applications by identity: %w", err)
	}
	var res Result
	for _, other := range apps {
		// Stores filter these already; the matcher does not rely on it.
		if other.ID == app.ID || other.IsRejected() {
			continue
		}
		res.Applications = append(res.Applications, other)
	}

	parcels, err := store.ListParcelsByOwner(ctx, app.NationalID)
	if err != nil {
		return Result{}, fmt.Errorf("match parcels by owner: %w", err)
	}
	for _, p := range parcels {
		if p.LinkedTo(app.ID) {
			continue
		}
		res.Parcels = append(res.Parcels, p)
	}
	return res, nil
}

// Matches converts a result into builder input.
func (r Result) Matches(app *models.Application) []conflicts.Match {
	out := make([]conflicts.Match, 0, len(r.Applications)+len(r.Parcels))
	for _, other := range r.Applications {
		rendered := conflicts.DescribeIdentityApplication(app, other)
		out = append(out, conflicts.Match{
			ApplicationID: app.ID,
			Type:          models.ConflictTypeIdentityDuplicate,
			Counterpart:   models.ApplicationCounterpart(other.ID),
			Title:         rendered.Title,
			Description:   rendered.Description,
			Confidence:    Confidence,
			Severity:      Severity,
		})
	}
	for _, p := range r.Parcels {
		rendered := conflicts.DescribeIdentityParcel(app, p)
		parcelID := p.ID
		out = append(out, conflicts.Match{
			ApplicationID: app.ID,
			Type:          models.ConflictTypeIdentityDuplicate,
			Counterpart:   models.ParcelCounterpart(p.ID),
			ParcelID:      &parcelID,
			Title:         rendered.Title,
			Description:   rendered.Description,
			Confidence:    Confidence,
			Severity:      Severity,
		})
	}
	return out
}
