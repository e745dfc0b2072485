package documents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/ports/mocks"
	"landreg/internal/detection/similarity"
	"landreg/internal/registry/models"
	"landreg/internal/registry/store"
	id "landreg/pkg/domain"
)

const (
	deedText = "This title deed certifies that the parcel known as Plot 4412 Kabulonga " +
		"Lusaka is held on leasehold for ninety nine years by the registered proprietor."
	nearDeedText = deedText + " clause"
	otherText    = "Affidavit sworn before the commissioner for oaths regarding customary " +
		"inheritance of farmland in Chongwe district by surviving relatives."
)

type ScannerSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	extractor *mocks.MockTextExtractor
	store     *store.InMemoryStore
	builder   *conflicts.Builder
	texts     map[string]string
	failures  map[string]error
	app       *models.Application
}

func TestScannerSuite(t *testing.T) {
	suite.Run(t, new(ScannerSuite))
}

func (s *ScannerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.extractor = mocks.NewMockTextExtractor(s.ctrl)
	s.store = store.NewInMemory()
	s.builder = conflicts.NewBuilder()
	s.texts = make(map[string]string)
	s.failures = make(map[string]error)
	s.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, path, _ string) (string, error) {
			if err, ok := s.failures[path]; ok {
				return "", err
			}
			txt, ok := s.texts[path]
			if !ok {
				return "", errors.New("unreadable")
			}
			return txt, nil
		}).AnyTimes()
	s.app = s.addApp("Mwansa Phiri")
}

func (s *ScannerSuite) scanner(opts ...Option) *Scanner {
	return NewScanner(s.extractor, s.builder, opts...)
}

func (s *ScannerSuite) addApp(name string) *models.Application {
	app := &models.Application{
		ID:              id.NewApplicationID(),
		ReferenceNumber: "LA-" + id.NewApplicationID().String()[:8],
		NationalID:      "123456/10/1",
		ApplicantName:   name,
		Status:          models.ApplicationStatusPending,
		SubmittedAt:     time.Now(),
	}
	s.Require().NoError(s.store.SaveApplication(s.ctx, app))
	return app
}

func (s *ScannerSuite) addDoc(app id.ApplicationID, docType, hash, text string) *models.Document {
	doc := &models.Document{
		ID:               id.NewDocumentID(),
		ApplicationID:    app,
		DocumentType:     docType,
		ContentHash:      hash,
		MimeType:         "text/plain",
		FilePath:         "uploads/" + id.NewDocumentID().String() + ".txt",
		OriginalFilename: "deed.txt",
		UploadedAt:       time.Now(),
	}
	if text != "" {
		s.texts[doc.FilePath] = text
	}
	s.Require().NoError(s.store.SaveDocument(s.ctx, doc))
	return doc
}

func (s *ScannerSuite) TestScanHashes_SeverityFollowsApplicantName() {
	sameName := s.addApp("  MWANSA PHIRI ")
	stranger := s.addApp("Fraudulent Applicant")
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "aaa", "")
	letter := s.addDoc(s.app.ID, models.DocumentTypeOfferLetter, "bbb", "")
	s.addDoc(sameName.ID, models.DocumentTypeTitleDeed, "AAA", "")
	s.addDoc(stranger.ID, models.DocumentTypeOfferLetter, "bbb", "")

	matches, err := s.scanner().ScanHashes(s.ctx, s.store, s.app, []*models.Document{deed, letter})
	s.Require().NoError(err)
	s.Require().Len(matches, 2)

	byKey := map[models.CounterpartKey]conflicts.Match{}
	for _, m := range matches {
		byKey[m.Counterpart] = m
		s.Equal(HashConfidence, m.Confidence)
		s.Equal(models.ConflictTypeDocumentDuplicate, m.Type)
	}
	same := byKey[models.DocumentCounterpart(sameName.ID, models.DocumentTypeTitleDeed)]
	s.Equal(models.SeverityMedium, same.Severity)
	s.Contains(same.Description, "likely duplicate submission")
	fraud := byKey[models.DocumentCounterpart(stranger.ID, models.DocumentTypeOfferLetter)]
	s.Equal(models.SeverityHigh, fraud.Severity)
	s.Contains(fraud.Description, "DOCUMENT FRAUD DETECTED")
}

func (s *ScannerSuite) TestScanHashes_OneNewMatchPerDocument() {
	first := s.addApp("Chanda Mulenga")
	second := s.addApp("Bwalya Tembo")
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "aaa", "")
	s.addDoc(first.ID, models.DocumentTypeTitleDeed, "aaa", "")
	s.addDoc(second.ID, models.DocumentTypeTitleDeed, "aaa", "")

	matches, err := s.scanner().ScanHashes(s.ctx, s.store, s.app, []*models.Document{deed})
	s.Require().NoError(err)
	s.Require().Len(matches, 1)

	// Once the first is recorded the next run moves on to the other counterpart.
	_, created, err := s.builder.Build(s.ctx, s.store, matches[0])
	s.Require().NoError(err)
	s.Require().True(created)

	next, err := s.scanner().ScanHashes(s.ctx, s.store, s.app, []*models.Document{deed})
	s.Require().NoError(err)
	s.Require().Len(next, 1)
	s.NotEqual(matches[0].Counterpart, next[0].Counterpart)
}

func (s *ScannerSuite) TestScanHashes_SkipsBadData() {
	ghost := id.NewApplicationID()
	noHash := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", "")
	deed := s.addDoc(s.app.ID, models.DocumentTypeOfferLetter, "ccc", "")
	s.addDoc(ghost, models.DocumentTypeOfferLetter, "ccc", "")
	own := s.addDoc(s.app.ID, models.DocumentTypeAffidavit, "ddd", "")
	s.addDoc(s.app.ID, models.DocumentTypeSitePlan, "ddd", "")

	matches, err := s.scanner().ScanHashes(s.ctx, s.store, s.app, []*models.Document{noHash, deed, own})
	s.Require().NoError(err)
	s.Empty(matches)
}

func (s *ScannerSuite) TestScanContent_ThresholdIsStrict() {
	other := s.addApp("Chanda Mulenga")
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "", nearDeedText)
	score := similarity.VectorSimilarity(deedText, []string{nearDeedText})[0]
	s.Require().Greater(score, DefaultContentThreshold)

	s.Run("score equal to threshold is not a match", func() {
		matches, err := s.scanner(WithThreshold(score)).ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
		s.Require().NoError(err)
		s.Empty(matches)
	})

	s.Run("score above threshold matches with raw confidence", func() {
		matches, err := s.scanner().ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
		s.Require().NoError(err)
		s.Require().Len(matches, 1)
		s.InDelta(score, matches[0].Confidence, 1e-12)
		s.Equal(models.SeverityHigh, matches[0].Severity)
		s.Equal(models.DocumentCounterpart(other.ID, models.DocumentTypeTitleDeed), matches[0].Counterpart)
		s.Contains(matches[0].Description, "High text content similarity")
	})
}

func (s *ScannerSuite) TestScanContent_SkipsIneligibleInputs() {
	other := s.addApp("Chanda Mulenga")
	nrc := s.addDoc(s.app.ID, models.DocumentTypeNationalID, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeNationalID, "", deedText)
	short := s.addDoc(s.app.ID, models.DocumentTypeAffidavit, "", "too short to compare")
	s.addDoc(other.ID, models.DocumentTypeAffidavit, "", deedText)
	unreadable := s.addDoc(s.app.ID, models.DocumentTypeOfferLetter, "", "")
	s.addDoc(other.ID, models.DocumentTypeOfferLetter, "", deedText)

	matches, err := s.scanner().ScanContent(s.ctx, s.store, s.app, []*models.Document{nrc, short, unreadable})
	s.Require().NoError(err)
	s.Empty(matches)
}

func (s *ScannerSuite) TestScanContent_CandidatesSameTypeOnly() {
	other := s.addApp("Chanda Mulenga")
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeAffidavit, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "", otherText)

	matches, err := s.scanner().ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
	s.Require().NoError(err)
	s.Empty(matches)
}

func (s *ScannerSuite) TestScanContent_UnreadableCandidateIsSkipped() {
	other := s.addApp("Chanda Mulenga")
	third := s.addApp("Bwalya Tembo")
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "", "")
	s.addDoc(third.ID, models.DocumentTypeTitleDeed, "", deedText)

	matches, err := s.scanner(WithConcurrency(1)).ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.Equal(models.DocumentCounterpart(third.ID, models.DocumentTypeTitleDeed), matches[0].Counterpart)
}

func (s *ScannerSuite) TestScanContent_ExtractorTimeoutEndsTheRun() {
	slotRefused := fmt.Errorf("wait for extraction slot: %w", context.DeadlineExceeded)

	s.Run("target document", func() {
		deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", deedText)
		s.failures[deed.FilePath] = slotRefused

		_, err := s.scanner().ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
		s.Require().Error(err)
		s.ErrorIs(err, context.DeadlineExceeded)
		delete(s.failures, deed.FilePath)
	})

	s.Run("candidate document", func() {
		app := s.addApp("Chanda Mulenga")
		other := s.addApp("Bwalya Tembo")
		deed := s.addDoc(app.ID, models.DocumentTypeAffidavit, "", otherText)
		candidate := s.addDoc(other.ID, models.DocumentTypeAffidavit, "", otherText)
		s.failures[candidate.FilePath] = slotRefused

		_, err := s.scanner(WithConcurrency(1)).ScanContent(s.ctx, s.store, app, []*models.Document{deed})
		s.Require().Error(err)
		s.ErrorIs(err, context.DeadlineExceeded)
	})
}

func (s *ScannerSuite) TestScanContent_KeepsBestScorePerCounterpart() {
	other := s.addApp("Chanda Mulenga")
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", deedText)
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "", nearDeedText)
	s.addDoc(other.ID, models.DocumentTypeTitleDeed, "", deedText)

	matches, err := s.scanner().ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.InDelta(1.0, matches[0].Confidence, 1e-9)
}

func (s *ScannerSuite) TestScanContent_CandidateLimit() {
	base := time.Now()
	deed := s.addDoc(s.app.ID, models.DocumentTypeTitleDeed, "", deedText)
	older := s.addApp("Chanda Mulenga")
	olderDoc := s.addDoc(older.ID, models.DocumentTypeTitleDeed, "", deedText)
	olderDoc.UploadedAt = base.Add(-time.Hour)
	s.Require().NoError(s.store.SaveDocument(s.ctx, olderDoc))
	newer := s.addApp("Bwalya Tembo")
	newerDoc := s.addDoc(newer.ID, models.DocumentTypeTitleDeed, "", otherText)
	newerDoc.UploadedAt = base.Add(time.Hour)
	s.Require().NoError(s.store.SaveDocument(s.ctx, newerDoc))

	matches, err := s.scanner(WithCandidateLimit(1)).ScanContent(s.ctx, s.store, s.app, []*models.Document{deed})
	s.Require().NoError(err)
	s.Empty(matches, "only the newest candidate is compared")
}
