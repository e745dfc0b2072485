// Package documents finds documents on other applications that are exact
// copies (same content hash) or near-copies (similar extracted text) of a
// target application's documents.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/metrics"
	"landreg/internal/detection/ports"
	"landreg/internal/detection/similarity"
	"landreg/internal/registry/models"
	"landreg/pkg/platform/sentinel"
	pstrings "landreg/pkg/platform/strings"
)

const (
	HashConfidence          = 1.0
	DefaultContentThreshold = 0.85
	DefaultCandidateLimit   = 200
	DefaultConcurrency      = 8
)

// Scanner produces document_duplicate matches. It only reads through the store
// it is given; conflicts are written by the caller.
type Scanner struct {
	extractor      ports.TextExtractor
	builder        *conflicts.Builder
	evidentiary    map[string]bool
	threshold      float64
	candidateLimit int
	concurrency    int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Scanner)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithThreshold sets the content similarity a candidate must exceed.
func WithThreshold(t float64) Option {
	return func(s *Scanner) {
		if t > 0 && t < 1 {
			s.threshold = t
		}
	}
}

func WithCandidateLimit(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.candidateLimit = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithEvidentiaryTypes replaces the document types compared by content.
func WithEvidentiaryTypes(types []string) Option {
	return func(s *Scanner) {
		types = pstrings.DedupeAndTrim(types)
		if len(types) == 0 {
			return
		}
		s.evidentiary = make(map[string]bool, len(types))
		for _, t := range types {
			s.evidentiary[t] = true
		}
	}
}

func NewScanner(extractor ports.TextExtractor, builder *conflicts.Builder, opts ...Option) *Scanner {
	s := &Scanner{
		extractor:      extractor,
		builder:        builder,
		threshold:      DefaultContentThreshold,
		candidateLimit: DefaultCandidateLimit,
		concurrency:    DefaultConcurrency,
		logger:         slog.Default(),
	}
	WithEvidentiaryTypes(models.DefaultEvidentiaryTypes)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanHashes matches app's documents against byte-identical documents on other
// applications. For each target document it returns at most one match whose
// key is not yet recorded. Same applicant name means a likely resubmission
// (medium); a different name means the file was reused by someone else (high).
func (s *Scanner) ScanHashes(ctx context.Context, store ports.Store, app *models.Application, docs []*models.Document) ([]conflicts.Match, error) {
	var out []conflicts.Match
	seen := make(map[models.CounterpartKey]bool)

	for _, doc := range docs {
		if !doc.HasHash() {
			s.logger.WarnContext(ctx, "document has no hash, skipping duplicate check",
				"document_id", doc.ID, "application_id", app.ID)
			s.metrics.IncrementSkipped("missing_hash")
			continue
		}
		dups, err := store.ListDocumentsByHash(ctx, doc.ContentHash, app.ID)
		if err != nil {
			return nil, fmt.Errorf("list documents by hash: %w", err)
		}

		for _, dup := range dups {
			if dup.ApplicationID == app.ID || !similarity.HashEqual(doc.ContentHash, dup.ContentHash) {
				continue
			}
			other, err := store.FindApplication(ctx, dup.ApplicationID)
			if errors.Is(err, sentinel.ErrNotFound) {
				s.logger.WarnContext(ctx, "duplicate document belongs to a missing application",
					"document_id", dup.ID, "application_id", dup.ApplicationID)
				s.metrics.IncrementSkipped("counterpart_missing")
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("find counterpart application: %w", err)
			}

			m := hashMatch(app, doc, other, dup)
			if seen[m.Counterpart] {
				continue
			}
			exists, err := s.builder.Exists(ctx, store, m)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
			seen[m.Counterpart] = true
			out = append(out, m)
			break
		}
	}
	return out, nil
}

func hashMatch(app *models.Application, doc *models.Document, other *models.Application, otherDoc *models.Document) conflicts.Match {
	sameName := pstrings.SameName(app.ApplicantName, other.ApplicantName)
	severity := models.SeverityHigh
	if sameName {
		severity = models.SeverityMedium
	}
	rendered := conflicts.DescribeHashDuplicate(app, doc, other, otherDoc, sameName)
	return conflicts.Match{
		ApplicationID: app.ID,
		Type:          models.ConflictTypeDocumentDuplicate,
		Counterpart:   models.DocumentCounterpart(other.ID, doc.DocumentType),
		Title:         rendered.Title,
		Description:   rendered.Description,
		Confidence:    HashConfidence,
		Severity:      severity,
	}
}

// ScanContent compares the extracted text of app's evidentiary documents with
// same-type documents on other applications. Candidates scoring strictly above
// the threshold become matches with the raw score as confidence.
func (s *Scanner) ScanContent(ctx context.Context, store ports.Store, app *models.Application, docs []*models.Document) ([]conflicts.Match, error) {
	var out []conflicts.Match
	best := make(map[models.CounterpartKey]int)

	for _, doc := range docs {
		if !s.evidentiary[doc.DocumentType] {
			continue
		}
		text, err := s.extractor.Extract(ctx, doc.FilePath, doc.MimeType)
		if err != nil {
			if stop := interrupted(ctx, err); stop != nil {
				return nil, stop
			}
			s.logger.WarnContext(ctx, "could not extract document text",
				"document_id", doc.ID, "error", err)
			s.metrics.IncrementSkipped("unreadable_text")
			continue
		}
		if !similarity.LongEnough(text) {
			continue
		}

		candidates, err := store.ListDocumentsByType(ctx, doc.DocumentType, app.ID, s.candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("list candidate documents: %w", err)
		}
		valid, texts, err := s.extractCandidates(ctx, doc, candidates)
		if err != nil {
			return nil, err
		}
		if len(valid) == 0 {
			continue
		}

		scores := similarity.VectorSimilarity(text, texts)
		for i, score := range scores {
			s.metrics.ObserveContentScore(score)
			if score <= s.threshold {
				continue
			}
			cand := valid[i]
			other, err := store.FindApplication(ctx, cand.ApplicationID)
			if errors.Is(err, sentinel.ErrNotFound) {
				s.metrics.IncrementSkipped("counterpart_missing")
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("find counterpart application: %w", err)
			}
			rendered := conflicts.DescribeContentSimilarity(doc, other, score)
			m := conflicts.Match{
				ApplicationID: app.ID,
				Type:          models.ConflictTypeDocumentDuplicate,
				Counterpart:   models.DocumentCounterpart(other.ID, doc.DocumentType),
				Title:         rendered.Title,
				Description:   rendered.Description,
				Confidence:    score,
				Severity:      models.SeverityHigh,
			}
			// One conflict per counterpart application and type; keep the closest copy.
			if at, ok := best[m.Counterpart]; ok {
				if m.Confidence > out[at].Confidence {
					out[at] = m
				}
				continue
			}
			best[m.Counterpart] = len(out)
			out = append(out, m)
		}
	}
	return out, nil
}

// extractCandidates reads candidate texts with bounded concurrency and keeps
// those long enough to compare, in candidate order.
func (s *Scanner) extractCandidates(ctx context.Context, target *models.Document, candidates []*models.Document) ([]*models.Document, []string, error) {
	texts := make([]string, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range candidates {
		if c.ID == target.ID || c.ApplicationID == target.ApplicationID {
			continue
		}
		g.Go(func() error {
			txt, err := s.extractor.Extract(gctx, c.FilePath, c.MimeType)
			if err != nil {
				if stop := interrupted(gctx, err); stop != nil {
					return stop
				}
				s.logger.DebugContext(gctx, "skipping unreadable candidate",
					"document_id", c.ID, "error", err)
				s.metrics.IncrementSkipped("unreadable_text")
				return nil
			}
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("extract candidate text: %w", err)
	}

	var valid []*models.Document
	var kept []string
	for i, c := range candidates {
		if strings.TrimSpace(texts[i]) == "" || !similarity.LongEnough(texts[i]) {
			continue
		}
		valid = append(valid, c)
		kept = append(kept, texts[i])
	}
	return valid, kept, nil
}

// interrupted returns the error that should end the run when an extraction
// failed because the run ran out of time, not because the file is unreadable.
func interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
