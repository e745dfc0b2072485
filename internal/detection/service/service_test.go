package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/documents"
	"landreg/internal/detection/metrics"
	"landreg/internal/detection/ports"
	"landreg/internal/detection/ports/mocks"
	"landreg/internal/registry/models"
	"landreg/internal/registry/store"
	id "landreg/pkg/domain"
	dErrors "landreg/pkg/domain-errors"
	"landreg/pkg/platform/audit"
	"landreg/pkg/requestcontext"
)

const deedText = "This title deed certifies that the parcel known as Plot 4412 Kabulonga " +
	"Lusaka is held on leasehold for ninety nine years by the registered proprietor."

var errStoreDown = errors.New("connection reset by peer")

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	ctrl      *gomock.Controller
	auditor   *mocks.MockAuditPublisher
	extractor *mocks.MockTextExtractor
	store     *store.InMemoryStore
	metrics   *metrics.Metrics
	texts     map[string]string
	svc       *Service
	entries   []audit.Entry
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctrl = gomock.NewController(s.T())
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.extractor = mocks.NewMockTextExtractor(s.ctrl)
	s.store = store.NewInMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.texts = make(map[string]string)
	s.entries = nil

	s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, path, _ string) (string, error) {
			if txt, ok := s.texts[path]; ok {
				return txt, nil
			}
			return "", errors.New("unreadable")
		}).AnyTimes()
	s.svc = s.newService(s.store)
}

func (s *ServiceSuite) newService(tx ports.Tx) *Service {
	builder := conflicts.NewBuilder()
	scanner := documents.NewScanner(s.extractor, builder, documents.WithMetrics(s.metrics))
	return New(tx, scanner, builder,
		WithAuditPublisher(s.auditor),
		WithMetrics(s.metrics),
		WithRunTimeout(5*time.Second),
	)
}

func (s *ServiceSuite) expectAudit(times int) {
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Entry) error {
			s.entries = append(s.entries, e)
			return nil
		}).Times(times)
}

func (s *ServiceSuite) addApp(name, nationalID string, status models.ApplicationStatus) *models.Application {
	app := &models.Application{
		ID:              id.NewApplicationID(),
		ReferenceNumber: "LA-" + id.NewApplicationID().String()[:8],
		NationalID:      nationalID,
		ApplicantName:   name,
		LandLocation:    "Plot 12, Kabwata, Lusaka",
		Status:          status,
		SubmittedAt:     s.now.Add(-24 * time.Hour),
	}
	s.Require().NoError(s.store.SaveApplication(s.ctx, app))
	return app
}

func (s *ServiceSuite) addParcel(owner string) *models.Parcel {
	p := &models.Parcel{
		ID:              id.NewParcelID(),
		ParcelNumber:    "LUS/" + id.NewParcelID().String()[:6],
		OwnerNationalID: owner,
		OwnerName:       "Mwansa Phiri",
		Location:        "Plot 12, Kabwata, Lusaka",
		SizeHectares:    0.25,
	}
	s.Require().NoError(s.store.SaveParcel(s.ctx, p))
	return p
}

func (s *ServiceSuite) addDoc(app id.ApplicationID, docType, hash, text string) *models.Document {
	doc := &models.Document{
		ID:               id.NewDocumentID(),
		ApplicationID:    app,
		DocumentType:     docType,
		ContentHash:      hash,
		MimeType:         "text/plain",
		FilePath:         "uploads/" + id.NewDocumentID().String(),
		OriginalFilename: "scan.txt",
		UploadedAt:       s.now.Add(-time.Hour),
	}
	if text != "" {
		s.texts[doc.FilePath] = text
	}
	s.Require().NoError(s.store.SaveDocument(s.ctx, doc))
	return doc
}

func (s *ServiceSuite) reload(appID id.ApplicationID) *models.Application {
	app, err := s.store.FindApplication(s.ctx, appID)
	s.Require().NoError(err)
	return app
}

func (s *ServiceSuite) TestDetectAllDuplicates_UnknownApplication() {
	created, err := s.svc.DetectAllDuplicates(s.ctx, id.NewApplicationID())
	s.Require().NoError(err)
	s.Empty(created)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Runs.WithLabelValues(opDetectDuplicates, "not_found")), 0)
}

func (s *ServiceSuite) TestDetectAllDuplicates_IdentityMatches() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusApproved)
	s.addParcel("123456/10/1")
	s.expectAudit(1)

	created, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 2)
	for _, c := range created {
		s.Equal(models.ConflictTypeIdentityDuplicate, c.Type)
		s.InDelta(0.95, c.Confidence, 1e-12)
		s.Equal(models.SeverityHigh, c.Severity)
		s.True(c.DetectedBySystem)
		s.Equal(s.now, c.CreatedAt)
	}

	stored := s.reload(app.ID)
	s.Equal(models.ApplicationStatusConflict, stored.Status)
	s.InDelta(0.95, stored.DuplicateScore, 1e-12)

	s.Require().Len(s.entries, 1)
	s.Equal(audit.ActionDetectDuplicates, s.entries[0].Action)
	s.Equal(audit.TableApplications, s.entries[0].TableName)
	s.Equal(app.ID.String(), s.entries[0].RecordID)
	s.Equal(2, s.entries[0].NewValues["duplicates_found"])
}

func (s *ServiceSuite) TestDetectAllDuplicates_Idempotent() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.addApp("Chanda Mulenga", "123456/10/1", models.ApplicationStatusPending)
	other := s.addApp("Bwalya Tembo", "222222/22/2", models.ApplicationStatusPending)
	s.addDoc(app.ID, models.DocumentTypeTitleDeed, "abc", "")
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "abc", "")
	s.expectAudit(2)

	first, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Len(first, 2)

	second, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Empty(second)

	all, err := s.store.ListConflictsByApplication(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Len(all, 2)

	stored := s.reload(app.ID)
	s.Equal(models.ApplicationStatusConflict, stored.Status)
	s.Zero(stored.DuplicateScore, "score reflects this run only")
	s.Equal(0, s.entries[1].NewValues["duplicates_found"])
}

func (s *ServiceSuite) TestDetectAllDuplicates_RejectedAndSelfExcluded() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusRejected)
	own := s.addParcel("123456/10/1")
	own.ApplicationID = &app.ID
	s.Require().NoError(s.store.SaveParcel(s.ctx, own))
	s.expectAudit(1)

	created, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Empty(created)

	stored := s.reload(app.ID)
	s.Equal(models.ApplicationStatusPending, stored.Status)
	s.Zero(stored.DuplicateScore)
}

func (s *ServiceSuite) TestDetectAllDuplicates_HashSeverityAndMaxScore() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusUnderReview)
	s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	resubmitted := s.addApp("MWANSA PHIRI ", "333333/33/3", models.ApplicationStatusPending)
	s.addDoc(app.ID, models.DocumentTypeOfferLetter, "f00d", "")
	s.addDoc(resubmitted.ID, models.DocumentTypeOfferLetter, "f00d", "")
	s.expectAudit(1)

	created, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 2)

	var hash *models.Conflict
	for _, c := range created {
		if c.Type == models.ConflictTypeDocumentDuplicate {
			hash = c
		}
	}
	s.Require().NotNil(hash)
	s.InDelta(1.0, hash.Confidence, 1e-12)
	s.Equal(models.SeverityMedium, hash.Severity)

	stored := s.reload(app.ID)
	s.InDelta(1.0, stored.DuplicateScore, 1e-12)
	s.Equal(models.ApplicationStatusUnderReview, stored.Status, "only pending applications move to conflict")
}

func (s *ServiceSuite) TestDetectAllDuplicates_AuditFailureKeepsResult() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.addParcel("123456/10/1")
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit sink down"))

	created, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Len(created, 1)
	s.Equal(models.ApplicationStatusConflict, s.reload(app.ID).Status)
}

func (s *ServiceSuite) TestDetectAllDuplicates_InfrastructureFailureRollsBack() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.addParcel("123456/10/1")
	svc := s.newService(faultyTx{inner: s.store})

	created, err := svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().Error(err)
	s.Empty(created)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, errStoreDown)

	all, err := s.store.ListConflictsByApplication(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Empty(all, "identity conflicts were rolled back")
	s.Equal(models.ApplicationStatusPending, s.reload(app.ID).Status)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Runs.WithLabelValues(opDetectDuplicates, "error")), 0)
}

func (s *ServiceSuite) TestDetectDocumentConflicts_ContentPassRaisesScoreOnly() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	other := s.addApp("Chanda Mulenga", "444444/44/4", models.ApplicationStatusPending)
	s.addDoc(app.ID, models.DocumentTypeTitleDeed, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "", deedText+" clause")
	s.expectAudit(2)

	created, err := s.svc.DetectDocumentConflicts(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	score := created[0].Confidence
	s.Greater(score, documents.DefaultContentThreshold)
	s.Less(score, 1.0)
	s.Equal(models.SeverityHigh, created[0].Severity)

	stored := s.reload(app.ID)
	s.Equal(models.ApplicationStatusConflict, stored.Status)
	s.InDelta(score, stored.DuplicateScore, 1e-12)
	s.Equal(audit.ActionDetectDocumentConflicts, s.entries[0].Action)

	stored.DuplicateScore = 1.0
	s.Require().NoError(s.store.SaveApplication(s.ctx, stored))
	third := s.addApp("Bwalya Tembo", "555555/55/5", models.ApplicationStatusPending)
	s.addDoc(third.ID, models.DocumentTypeTitleDeed, "", deedText+" clause")

	created, err = s.svc.DetectDocumentConflicts(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.InDelta(1.0, s.reload(app.ID).DuplicateScore, 1e-12, "score is never lowered")
}

func (s *ServiceSuite) TestDetectDocumentConflicts_NoDocuments() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.expectAudit(1)

	created, err := s.svc.DetectDocumentConflicts(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Empty(created)
	s.Equal(models.ApplicationStatusPending, s.reload(app.ID).Status)
}

func (s *ServiceSuite) TestResolveDuplicate() {
	app := s.addApp("Mwansa Phiri", "123456/10/1", models.ApplicationStatusPending)
	s.addParcel("123456/10/1")
	s.expectAudit(2)
	created, err := s.svc.DetectAllDuplicates(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	conflictID := created[0].ID
	reviewer := id.UserID(uuid.New())

	s.Run("unknown conflict", func() {
		ok, err := s.svc.ResolveDuplicate(s.ctx, id.NewConflictID(), nil)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("resolves once with audit trail", func() {
		ok, err := s.svc.ResolveDuplicate(s.ctx, conflictID, &reviewer)
		s.Require().NoError(err)
		s.True(ok)

		stored, err := s.store.FindConflict(s.ctx, conflictID)
		s.Require().NoError(err)
		s.Equal(models.ConflictStatusResolved, stored.Status)
		s.Require().NotNil(stored.ResolvedAt)
		s.True(stored.ResolvedAt.After(stored.CreatedAt))
		s.Require().NotNil(stored.ResolvedBy)
		s.Equal(reviewer, *stored.ResolvedBy)

		entry := s.entries[len(s.entries)-1]
		s.Equal(audit.ActionResolveDuplicate, entry.Action)
		s.Equal(audit.TableConflicts, entry.TableName)
		s.Equal(map[string]any{"status": "unresolved"}, entry.OldValues)
		s.Equal(map[string]any{"status": "resolved"}, entry.NewValues)
		s.Equal(&reviewer, entry.ActorID)
	})

	s.Run("already resolved is a no-op", func() {
		ok, err := s.svc.ResolveDuplicate(s.ctx, conflictID, nil)
		s.Require().NoError(err)
		s.True(ok)

		stored, err := s.store.FindConflict(s.ctx, conflictID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.ResolvedBy)
		s.Equal(reviewer, *stored.ResolvedBy)
	})
}

// faultyTx runs on the real memory store but fails the final screening
// update, after conflicts have been written in the same transaction.
type faultyTx struct {
	inner *store.InMemoryStore
}

func (f faultyTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return f.inner.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		return fn(ctx, faultyStore{Store: st})
	})
}

type faultyStore struct {
	ports.Store
}

func (faultyStore) UpdateApplicationScreening(context.Context, *models.Application) error {
	return errStoreDown
}
