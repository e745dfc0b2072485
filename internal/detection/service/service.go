// Package service runs duplicate and conflict detection for one application
// at a time and resolves conflicts on behalf of reviewers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/documents"
	"landreg/internal/detection/identity"
	"landreg/internal/detection/metrics"
	"landreg/internal/detection/ports"
	"landreg/internal/platform/tracing"
	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	dErrors "landreg/pkg/domain-errors"
	"landreg/pkg/platform/audit"
	"landreg/pkg/platform/sentinel"
	"landreg/pkg/requestcontext"
)

const (
	opDetectDuplicates = "detect_duplicates"
	opDetectDocuments  = "detect_document_conflicts"
	opResolve          = "resolve_duplicate"
)

// Service orchestrates the matchers inside one transaction per call. Audit
// entries are appended after commit and never fail the call.
type Service struct {
	tx         ports.Tx
	identity   *identity.Matcher
	scanner    *documents.Scanner
	builder    *conflicts.Builder
	auditor    ports.AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	runTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithRunTimeout bounds a call whose context has no deadline.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.runTimeout = d
	}
}

func New(tx ports.Tx, scanner *documents.Scanner, builder *conflicts.Builder, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		identity: identity.NewMatcher(),
		scanner:  scanner,
		builder:  builder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DetectAllDuplicates checks the application's identity against other
// applications and registered parcels, and its documents against exact copies
// elsewhere. It returns the conflicts created by this run. An unknown
// application yields an empty result and a nil error.
func (s *Service) DetectAllDuplicates(ctx context.Context, appID id.ApplicationID) (created []*models.Conflict, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "detection.DetectAllDuplicates",
		attribute.String("application_id", appID.String()))
	defer func() { tracing.End(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	found := true
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		created = nil
		app, err := store.FindApplication(ctx, appID)
		if errors.Is(err, sentinel.ErrNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		res, err := s.identity.Match(ctx, store, app)
		if err != nil {
			return err
		}
		matches := res.Matches(app)

		docs, err := store.ListDocumentsByApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		hashMatches, err := s.scanner.ScanHashes(ctx, store, app, docs)
		if err != nil {
			return err
		}
		matches = append(matches, hashMatches...)

		created, err = s.buildAll(ctx, store, matches)
		if err != nil {
			return err
		}

		app.ApplyScreening(maxConfidence(created), len(created))
		return store.UpdateApplicationScreening(ctx, app)
	})
	s.metrics.ObserveRunDuration(opDetectDuplicates, time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, opDetectDuplicates, appID.String(), err)
	}
	if !found {
		s.metrics.IncrementRun(opDetectDuplicates, "not_found")
		s.logger.InfoContext(ctx, "application not found for duplicate detection", "application_id", appID)
		return nil, nil
	}

	s.recordCreated(created)
	s.metrics.IncrementRun(opDetectDuplicates, "ok")
	s.emit(ctx, audit.Entry{
		Action:    audit.ActionDetectDuplicates,
		TableName: audit.TableApplications,
		RecordID:  appID.String(),
		NewValues: map[string]any{"duplicates_found": len(created)},
	})
	s.logger.InfoContext(ctx, "duplicate detection complete",
		"application_id", appID, "duplicates_found", len(created))
	return created, nil
}

// DetectDocumentConflicts runs both document passes (exact hash, then text
// content) for an application. The duplicate score is raised to this run's
// highest confidence and never lowered.
func (s *Service) DetectDocumentConflicts(ctx context.Context, appID id.ApplicationID) (created []*models.Conflict, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "detection.DetectDocumentConflicts",
		attribute.String("application_id", appID.String()))
	defer func() { tracing.End(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	found := true
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		created = nil
		app, err := store.FindApplication(ctx, appID)
		if errors.Is(err, sentinel.ErrNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		docs, err := store.ListDocumentsByApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		matches, err := s.scanner.ScanHashes(ctx, store, app, docs)
		if err != nil {
			return err
		}
		contentMatches, err := s.scanner.ScanContent(ctx, store, app, docs)
		if err != nil {
			return err
		}
		matches = append(matches, contentMatches...)

		created, err = s.buildAll(ctx, store, matches)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			return nil
		}
		app.ApplyScreening(max(app.DuplicateScore, maxConfidence(created)), len(created))
		return store.UpdateApplicationScreening(ctx, app)
	})
	s.metrics.ObserveRunDuration(opDetectDocuments, time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, opDetectDocuments, appID.String(), err)
	}
	if !found {
		s.metrics.IncrementRun(opDetectDocuments, "not_found")
		s.logger.InfoContext(ctx, "application not found for document analysis", "application_id", appID)
		return nil, nil
	}

	s.recordCreated(created)
	s.metrics.IncrementRun(opDetectDocuments, "ok")
	s.emit(ctx, audit.Entry{
		Action:    audit.ActionDetectDocumentConflicts,
		TableName: audit.TableApplications,
		RecordID:  appID.String(),
		NewValues: map[string]any{"duplicates_found": len(created)},
	})
	s.logger.InfoContext(ctx, "document analysis complete",
		"application_id", appID, "duplicates_found", len(created))
	return created, nil
}

// ResolveDuplicate marks a conflict resolved. It returns false with a nil
// error when the conflict does not exist, and true without writing when it
// was already resolved.
func (s *Service) ResolveDuplicate(ctx context.Context, conflictID id.ConflictID, resolvedBy *id.UserID) (ok bool, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "detection.ResolveDuplicate",
		attribute.String("conflict_id", conflictID.String()))
	defer func() { tracing.End(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var found, changed bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store ports.Store) error {
		found, changed = false, false
		conflict, err := store.FindConflict(ctx, conflictID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if conflict.CanResolve() != nil {
			return nil
		}
		conflict.ApplyResolution(requestcontext.Now(ctx), resolvedBy)
		if err := store.UpdateConflictResolution(ctx, conflict); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, s.fail(ctx, opResolve, conflictID.String(), err)
	}
	switch {
	case !found:
		s.metrics.IncrementRun(opResolve, "not_found")
		return false, nil
	case !changed:
		s.metrics.IncrementRun(opResolve, "already_resolved")
		return true, nil
	}

	s.metrics.IncrementRun(opResolve, "ok")
	s.emit(ctx, audit.Entry{
		Action:    audit.ActionResolveDuplicate,
		TableName: audit.TableConflicts,
		RecordID:  conflictID.String(),
		ActorID:   resolvedBy,
		OldValues: map[string]any{"status": string(models.ConflictStatusUnresolved)},
		NewValues: map[string]any{"status": string(models.ConflictStatusResolved)},
	})
	s.logger.InfoContext(ctx, "duplicate conflict resolved", "conflict_id", conflictID)
	return true, nil
}

func (s *Service) buildAll(ctx context.Context, store ports.Store, matches []conflicts.Match) ([]*models.Conflict, error) {
	var created []*models.Conflict
	for _, m := range matches {
		c, ok, err := s.builder.Build(ctx, store, m)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, c)
		}
	}
	return created, nil
}

func (s *Service) recordCreated(created []*models.Conflict) {
	for _, c := range created {
		s.metrics.IncrementConflict(string(c.Type), string(c.Severity))
	}
}

// fail logs an aborted run and converts err into a coded error. The
// transaction has already been rolled back.
func (s *Service) fail(ctx context.Context, op, recordID string, err error) error {
	s.metrics.IncrementRun(op, "error")
	s.logger.ErrorContext(ctx, "detection run aborted", "operation", op, "record_id", recordID, "error", err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" did not complete")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, op+" failed")
}

// emit appends an audit entry. Failures are logged and swallowed.
func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit entry",
			"action", entry.Action, "record_id", entry.RecordID, "error", err)
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.runTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.runTimeout)
}

func maxConfidence(cs []*models.Conflict) float64 {
	var out float64
	for _, c := range cs {
		out = max(out, c.Confidence)
	}
	return out
}
