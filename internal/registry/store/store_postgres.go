package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landreg/internal/detection/ports"
	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	"landreg/pkg/platform/sentinel"
	txcontext "landreg/pkg/platform/tx"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore reads and writes registry rows. Every query joins the
// transaction carried in ctx when one is open.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.Store = (*PostgresStore)(nil)

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

const applicationColumns = `id, reference_number, national_id, tax_id, applicant_name,
	land_location, status, submitted_at, duplicate_score`

func (s *PostgresStore) FindApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM land_applications WHERE id = $1`,
		uuid.UUID(appID),
	)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) ListApplicationsByIdentity(ctx context.Context, nationalID, taxID string, exclude id.ApplicationID) ([]*models.Application, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT `+applicationColumns+`
		FROM land_applications
		WHERE id <> $1
		  AND status <> $2
		  AND (national_id = $3 OR ($4 <> '' AND tax_id = $4))
		ORDER BY submitted_at
	`, uuid.UUID(exclude), string(models.ApplicationStatusRejected), nationalID, taxID)
	if err != nil {
		return nil, fmt.Errorf("list applications by identity: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

const parcelColumns = `id, parcel_number, owner_national_id, owner_name, location,
	size_hectares, certificate_number, application_id`

func (s *PostgresStore) ListParcelsByOwner(ctx context.Context, nationalID string) ([]*models.Parcel, error) {
	return s.queryParcels(ctx,
		`SELECT `+parcelColumns+` FROM land_parcels WHERE owner_national_id = $1 ORDER BY parcel_number`,
		nationalID,
	)
}

func (s *PostgresStore) ListParcels(ctx context.Context, limit int) ([]*models.Parcel, error) {
	return s.queryParcels(ctx,
		`SELECT `+parcelColumns+` FROM land_parcels ORDER BY parcel_number LIMIT $1`,
		limit,
	)
}

func (s *PostgresStore) queryParcels(ctx context.Context, query string, args ...any) ([]*models.Parcel, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	defer rows.Close()

	var out []*models.Parcel
	for rows.Next() {
		var (
			p     models.Parcel
			pid   uuid.UUID
			appID uuid.NullUUID
		)
		if err := rows.Scan(&pid, &p.ParcelNumber, &p.OwnerNationalID, &p.OwnerName, &p.Location,
			&p.SizeHectares, &p.CertificateNumber, &appID); err != nil {
			return nil, fmt.Errorf("scan parcel: %w", err)
		}
		p.ID = id.ParcelID(pid)
		if appID.Valid {
			linked := id.ApplicationID(appID.UUID)
			p.ApplicationID = &linked
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parcels: %w", err)
	}
	return out, nil
}

const documentColumns = `id, application_id, document_type, content_hash, mime_type,
	file_path, original_filename, uploaded_at`

func (s *PostgresStore) ListDocumentsByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM land_documents WHERE application_id = $1 ORDER BY uploaded_at, id`,
		uuid.UUID(appID),
	)
}

func (s *PostgresStore) ListDocumentsByHash(ctx context.Context, hash string, exclude id.ApplicationID) ([]*models.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+`
		FROM land_documents
		WHERE lower(content_hash) = lower($1) AND application_id <> $2
		ORDER BY uploaded_at, id
	`, hash, uuid.UUID(exclude))
}

func (s *PostgresStore) ListDocumentsByType(ctx context.Context, documentType string, exclude id.ApplicationID, limit int) ([]*models.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+documentColumns+`
		FROM land_documents
		WHERE document_type = $1 AND application_id <> $2
		ORDER BY uploaded_at DESC, id
		LIMIT $3
	`, documentType, uuid.UUID(exclude), limit)
}

func (s *PostgresStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		var (
			d          models.Document
			did, appID uuid.UUID
		)
		if err := rows.Scan(&did, &appID, &d.DocumentType, &d.ContentHash, &d.MimeType,
			&d.FilePath, &d.OriginalFilename, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ID = id.DocumentID(did)
		d.ApplicationID = id.ApplicationID(appID)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

const conflictColumns = `id, application_id, conflicting_parcel_id, conflict_type, counterpart_key,
	title, description, confidence_score, severity, detected_by_system, status,
	created_at, resolved_at, resolved_by`

func (s *PostgresStore) FindConflict(ctx context.Context, conflictID id.ConflictID) (*models.Conflict, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM land_conflicts WHERE id = $1`,
		uuid.UUID(conflictID),
	)
	return scanConflictRow(row)
}

func (s *PostgresStore) FindConflictByKey(ctx context.Context, appID id.ApplicationID, conflictType models.ConflictType, key models.CounterpartKey) (*models.Conflict, error) {
	row := s.exec(ctx).QueryRowContext(ctx, `
		SELECT `+conflictColumns+`
		FROM land_conflicts
		WHERE application_id = $1 AND conflict_type = $2 AND counterpart_key = $3
	`, uuid.UUID(appID), string(conflictType), string(key))
	return scanConflictRow(row)
}

// ListConflictsByApplication returns every conflict recorded for appID, oldest first.
func (s *PostgresStore) ListConflictsByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Conflict, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT `+conflictColumns+`
		FROM land_conflicts
		WHERE application_id = $1
		ORDER BY created_at, id
	`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*models.Conflict
	for rows.Next() {
		c, err := scanConflictRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return out, nil
}

// InsertConflict relies on the land_conflicts_dedup constraint. A concurrent run
// that already inserted the same key yields sentinel.ErrConflict.
func (s *PostgresStore) InsertConflict(ctx context.Context, c *models.Conflict) error {
	var parcelID uuid.NullUUID
	if c.ConflictingParcelID != nil {
		parcelID = uuid.NullUUID{UUID: uuid.UUID(*c.ConflictingParcelID), Valid: true}
	}
	res, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO land_conflicts (
			id, application_id, conflicting_parcel_id, conflict_type, counterpart_key,
			title, description, confidence_score, severity, detected_by_system, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT ON CONSTRAINT land_conflicts_dedup DO NOTHING
	`,
		uuid.UUID(c.ID),
		uuid.UUID(c.ApplicationID),
		parcelID,
		string(c.Type),
		string(c.CounterpartKey),
		c.Title,
		c.Description,
		c.Confidence,
		string(c.Severity),
		c.DetectedBySystem,
		string(c.Status),
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert conflict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert conflict rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) UpdateConflictResolution(ctx context.Context, c *models.Conflict) error {
	var resolvedBy uuid.NullUUID
	if c.ResolvedBy != nil {
		resolvedBy = uuid.NullUUID{UUID: uuid.UUID(*c.ResolvedBy), Valid: true}
	}
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE land_conflicts
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1
	`, uuid.UUID(c.ID), string(c.Status), c.ResolvedAt, resolvedBy)
	if err != nil {
		return fmt.Errorf("update conflict resolution: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) UpdateApplicationScreening(ctx context.Context, app *models.Application) error {
	res, err := s.exec(ctx).ExecContext(ctx, `
		UPDATE land_applications
		SET status = $2, duplicate_score = $3
		WHERE id = $1
	`, uuid.UUID(app.ID), string(app.Status), app.DuplicateScore)
	if err != nil {
		return fmt.Errorf("update application screening: %w", err)
	}
	return requireOneRow(res)
}

// SaveApplication, SaveParcel and SaveDocument upsert registry rows owned by the
// submission workflow. Detection never calls them; tests and seeding do.
func (s *PostgresStore) SaveApplication(ctx context.Context, app *models.Application) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO land_applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			reference_number = EXCLUDED.reference_number,
			national_id = EXCLUDED.national_id,
			tax_id = EXCLUDED.tax_id,
			applicant_name = EXCLUDED.applicant_name,
			land_location = EXCLUDED.land_location,
			status = EXCLUDED.status,
			submitted_at = EXCLUDED.submitted_at,
			duplicate_score = EXCLUDED.duplicate_score
	`,
		uuid.UUID(app.ID), app.ReferenceNumber, app.NationalID, app.TaxID, app.ApplicantName,
		app.LandLocation, string(app.Status), app.SubmittedAt, app.DuplicateScore,
	)
	if err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveParcel(ctx context.Context, p *models.Parcel) error {
	var appID uuid.NullUUID
	if p.ApplicationID != nil {
		appID = uuid.NullUUID{UUID: uuid.UUID(*p.ApplicationID), Valid: true}
	}
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO land_parcels (`+parcelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`,
		uuid.UUID(p.ID), p.ParcelNumber, p.OwnerNationalID, p.OwnerName, p.Location,
		p.SizeHectares, p.CertificateNumber, appID,
	)
	if err != nil {
		return fmt.Errorf("save parcel: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, d *models.Document) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO land_documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`,
		uuid.UUID(d.ID), uuid.UUID(d.ApplicationID), d.DocumentType, d.ContentHash, d.MimeType,
		d.FilePath, d.OriginalFilename, d.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app    models.Application
		appID  uuid.UUID
		status string
	)
	if err := row.Scan(&appID, &app.ReferenceNumber, &app.NationalID, &app.TaxID, &app.ApplicantName,
		&app.LandLocation, &status, &app.SubmittedAt, &app.DuplicateScore); err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.Status = models.ApplicationStatus(status)
	return &app, nil
}

func scanConflictRow(row rowScanner) (*models.Conflict, error) {
	var (
		c                     models.Conflict
		cid, appID            uuid.UUID
		parcelID, resolvedBy  uuid.NullUUID
		ctype, key, sev, stat string
		resolvedAt            sql.NullTime
	)
	err := row.Scan(&cid, &appID, &parcelID, &ctype, &key, &c.Title, &c.Description,
		&c.Confidence, &sev, &c.DetectedBySystem, &stat, &c.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan conflict: %w", err)
	}
	c.ID = id.ConflictID(cid)
	c.ApplicationID = id.ApplicationID(appID)
	c.Type = models.ConflictType(ctype)
	c.CounterpartKey = models.CounterpartKey(key)
	c.Severity = models.Severity(sev)
	c.Status = models.ConflictStatus(stat)
	if parcelID.Valid {
		p := id.ParcelID(parcelID.UUID)
		c.ConflictingParcelID = &p
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		u := id.UserID(resolvedBy.UUID)
		c.ResolvedBy = &u
	}
	return &c, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

const defaultTxTimeout = 30 * time.Second

// PostgresTx runs detection units of work in one database transaction.
type PostgresTx struct {
	db      *sql.DB
	store   *PostgresStore
	timeout time.Duration
}

var _ ports.Tx = (*PostgresTx)(nil)

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, store: NewPostgres(db), timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, sqlTx), t.store); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
