package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"landreg/internal/detection/ports"
	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	"landreg/pkg/platform/sentinel"
)

type conflictKey struct {
	app   id.ApplicationID
	ctype models.ConflictType
	key   models.CounterpartKey
}

type state struct {
	applications map[id.ApplicationID]*models.Application
	parcels      map[id.ParcelID]*models.Parcel
	documents    map[id.DocumentID]*models.Document
	conflicts    map[id.ConflictID]*models.Conflict
	conflictKeys map[conflictKey]id.ConflictID
}

func newState() *state {
	return &state{
		applications: make(map[id.ApplicationID]*models.Application),
		parcels:      make(map[id.ParcelID]*models.Parcel),
		documents:    make(map[id.DocumentID]*models.Document),
		conflicts:    make(map[id.ConflictID]*models.Conflict),
		conflictKeys: make(map[conflictKey]id.ConflictID),
	}
}

// clone copies rows by value so a transaction can be discarded without
// touching committed state.
func (st *state) clone() *state {
	out := newState()
	for k, v := range st.applications {
		cp := *v
		out.applications[k] = &cp
	}
	for k, v := range st.parcels {
		cp := *v
		out.parcels[k] = &cp
	}
	for k, v := range st.documents {
		cp := *v
		out.documents[k] = &cp
	}
	for k, v := range st.conflicts {
		cp := *v
		out.conflicts[k] = &cp
	}
	for k, v := range st.conflictKeys {
		out.conflictKeys[k] = v
	}
	return out
}

// InMemoryStore is the registry held in maps. Reads return copies. Used by
// tests and by the CLI when no database is configured.
type InMemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
}

var (
	_ ports.Store = (*InMemoryStore)(nil)
	_ ports.Tx    = (*InMemoryStore)(nil)
)

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{data: newState()}
}

// RunInTx serializes transactions. fn works on a private snapshot that replaces
// the committed state only when fn returns nil.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := &InMemoryStore{data: s.data.clone()}
	s.mu.RUnlock()

	if err := fn(ctx, snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = snapshot.data
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) SaveApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.data.applications[app.ID] = &cp
	return nil
}

func (s *InMemoryStore) SaveParcel(_ context.Context, p *models.Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.data.parcels[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) SaveDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.data.documents[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindApplication(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.data.applications[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *InMemoryStore) ListApplicationsByIdentity(_ context.Context, nationalID, taxID string, exclude id.ApplicationID) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.data.applications {
		if app.ID == exclude || app.IsRejected() {
			continue
		}
		if app.NationalID == nationalID || (taxID != "" && app.TaxID == taxID) {
			cp := *app
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *InMemoryStore) ListParcelsByOwner(_ context.Context, nationalID string) ([]*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Parcel
	for _, p := range s.data.parcels {
		if p.OwnerNationalID == nationalID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sortParcels(out)
	return out, nil
}

func (s *InMemoryStore) ListParcels(_ context.Context, limit int) ([]*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Parcel, 0, len(s.data.parcels))
	for _, p := range s.data.parcels {
		cp := *p
		out = append(out, &cp)
	}
	sortParcels(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListDocumentsByApplication(_ context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	return s.filterDocuments(func(d *models.Document) bool { return d.ApplicationID == appID }, false, 0), nil
}

func (s *InMemoryStore) ListDocumentsByHash(_ context.Context, hash string, exclude id.ApplicationID) ([]*models.Document, error) {
	return s.filterDocuments(func(d *models.Document) bool {
		return d.ApplicationID != exclude && d.HasHash() && strings.EqualFold(d.ContentHash, hash)
	}, false, 0), nil
}

func (s *InMemoryStore) ListDocumentsByType(_ context.Context, documentType string, exclude id.ApplicationID, limit int) ([]*models.Document, error) {
	return s.filterDocuments(func(d *models.Document) bool {
		return d.ApplicationID != exclude && d.DocumentType == documentType
	}, true, limit), nil
}

func (s *InMemoryStore) filterDocuments(keep func(*models.Document) bool, newestFirst bool, limit int) []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, d := range s.data.documents {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.UploadedAt.Equal(b.UploadedAt) {
			if newestFirst {
				return a.UploadedAt.After(b.UploadedAt)
			}
			return a.UploadedAt.Before(b.UploadedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *InMemoryStore) FindConflict(_ context.Context, conflictID id.ConflictID) (*models.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.conflicts[conflictID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) FindConflictByKey(_ context.Context, appID id.ApplicationID, conflictType models.ConflictType, key models.CounterpartKey) (*models.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.data.conflictKeys[conflictKey{app: appID, ctype: conflictType, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.data.conflicts[cid]
	return &cp, nil
}

func (s *InMemoryStore) InsertConflict(_ context.Context, c *models.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := conflictKey{app: c.ApplicationID, ctype: c.Type, key: c.CounterpartKey}
	if _, exists := s.data.conflictKeys[k]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.data.conflicts[c.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *c
	s.data.conflicts[c.ID] = &cp
	s.data.conflictKeys[k] = c.ID
	return nil
}

func (s *InMemoryStore) UpdateConflictResolution(_ context.Context, c *models.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.data.conflicts[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = c.Status
	existing.ResolvedAt = c.ResolvedAt
	existing.ResolvedBy = c.ResolvedBy
	return nil
}

func (s *InMemoryStore) UpdateApplicationScreening(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.data.applications[app.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = app.Status
	existing.DuplicateScore = app.DuplicateScore
	return nil
}

// ListConflictsByApplication returns every conflict recorded for appID, oldest first.
func (s *InMemoryStore) ListConflictsByApplication(_ context.Context, appID id.ApplicationID) ([]*models.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Conflict
	for _, c := range s.data.conflicts {
		if c.ApplicationID == appID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func sortParcels(ps []*models.Parcel) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ParcelNumber < ps[j].ParcelNumber })
}
