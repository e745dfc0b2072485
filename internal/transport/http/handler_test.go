package httptransport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"landreg/internal/detection/conflicts"
	"landreg/internal/detection/documents"
	"landreg/internal/detection/ports/mocks"
	"landreg/internal/detection/service"
	"landreg/internal/platform/metrics"
	"landreg/internal/registry/models"
	"landreg/internal/registry/store"
	id "landreg/pkg/domain"
	dErrors "landreg/pkg/domain-errors"
	"landreg/pkg/platform/middleware/metadata"
	"landreg/pkg/testutil"
)

type stubService struct {
	detect  func(ctx context.Context, appID id.ApplicationID) ([]*models.Conflict, error)
	resolve func(ctx context.Context, conflictID id.ConflictID, resolvedBy *id.UserID) (bool, error)
}

func (s *stubService) DetectAllDuplicates(ctx context.Context, appID id.ApplicationID) ([]*models.Conflict, error) {
	return s.detect(ctx, appID)
}

func (s *stubService) DetectDocumentConflicts(ctx context.Context, appID id.ApplicationID) ([]*models.Conflict, error) {
	return s.detect(ctx, appID)
}

func (s *stubService) ResolveDuplicate(ctx context.Context, conflictID id.ConflictID, resolvedBy *id.UserID) (bool, error) {
	return s.resolve(ctx, conflictID, resolvedBy)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestRouter(svc Service, opts ...RouterOption) http.Handler {
	reg := prometheus.NewRegistry()
	opts = append([]RouterOption{WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))}, opts...)
	return NewRouter(NewHandler(svc, quietLogger()), opts...)
}

func TestDetectEndpoints(t *testing.T) {
	appID := id.NewApplicationID()
	parcelID := id.NewParcelID()
	conflict := &models.Conflict{
		ID:                  id.NewConflictID(),
		ApplicationID:       appID,
		ConflictingParcelID: &parcelID,
		Type:                models.ConflictTypeIdentityDuplicate,
		Title:               "NATIONAL ID ALREADY REGISTERED",
		Confidence:          0.95,
		Severity:            models.SeverityHigh,
		Status:              models.ConflictStatusUnresolved,
	}

	testutil.Given(t, "a service that finds one conflict", func(t *testing.T) {
		svc := &stubService{detect: func(_ context.Context, got id.ApplicationID) ([]*models.Conflict, error) {
			assert.Equal(t, appID, got)
			return []*models.Conflict{conflict}, nil
		}}
		router := newTestRouter(svc)

		for _, path := range []string{"/detect-duplicates", "/detect-document-conflicts"} {
			testutil.When(t, "POST "+path, func(t *testing.T) {
				rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/applications/"+appID.String()+path))
				testutil.Then(t, "the conflict is returned", func(t *testing.T) {
					testutil.AssertStatusOK(t, rr)
					resp := testutil.UnmarshalResponse[DetectionResponse](t, rr)
					assert.Equal(t, 1, resp.DuplicatesFound)
					require.Len(t, resp.Conflicts, 1)
					assert.Equal(t, parcelID.String(), resp.Conflicts[0].ConflictingParcelID)
					assert.Equal(t, "high", resp.Conflicts[0].Severity)
					assert.False(t, resp.Degraded)
				})
			})
		}
	})

	testutil.Given(t, "a failing service", func(t *testing.T) {
		svc := &stubService{detect: func(context.Context, id.ApplicationID) ([]*models.Conflict, error) {
			return nil, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "detect_duplicates failed")
		}}
		rr := testutil.DoRequest(newTestRouter(svc),
			testutil.NewRequest(t, http.MethodPost, "/applications/"+appID.String()+"/detect-duplicates"))

		testutil.Then(t, "the caller is not blocked and sees a degraded empty result", func(t *testing.T) {
			testutil.AssertStatusOK(t, rr)
			resp := testutil.UnmarshalResponse[DetectionResponse](t, rr)
			assert.True(t, resp.Degraded)
			assert.Equal(t, "internal_error", resp.Error)
			assert.Empty(t, resp.Conflicts)
		})
	})

	t.Run("malformed application ID is rejected", func(t *testing.T) {
		svc := &stubService{detect: func(context.Context, id.ApplicationID) ([]*models.Conflict, error) {
			t.Fatal("service must not be called")
			return nil, nil
		}}
		rr := testutil.DoRequest(newTestRouter(svc),
			testutil.NewRequest(t, http.MethodPost, "/applications/not-a-uuid/detect-duplicates"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}

func TestResolveEndpoint(t *testing.T) {
	conflictID := id.NewConflictID()
	path := "/conflicts/" + conflictID.String() + "/resolve"

	t.Run("resolved_by from body", func(t *testing.T) {
		officer := uuid.New()
		var got *id.UserID
		svc := &stubService{resolve: func(_ context.Context, _ id.ConflictID, by *id.UserID) (bool, error) {
			got = by
			return true, nil
		}}
		rr := testutil.DoRequest(newTestRouter(svc),
			testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"resolved_by": officer.String()}))

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "resolved", true)
		require.NotNil(t, got)
		assert.Equal(t, id.UserID(officer), *got)
	})

	t.Run("resolved_by defaults to the acting user", func(t *testing.T) {
		actor := uuid.New()
		var got *id.UserID
		svc := &stubService{resolve: func(_ context.Context, _ id.ConflictID, by *id.UserID) (bool, error) {
			got = by
			return true, nil
		}}
		req := testutil.NewRequest(t, http.MethodPost, path)
		req.Header.Set(metadata.HeaderActorID, actor.String())
		rr := testutil.DoRequest(newTestRouter(svc), req)

		testutil.AssertStatusOK(t, rr)
		require.NotNil(t, got)
		assert.Equal(t, id.UserID(actor), *got)
	})

	t.Run("actor already on the request context", func(t *testing.T) {
		actor := uuid.New()
		var got *id.UserID
		svc := &stubService{resolve: func(_ context.Context, _ id.ConflictID, by *id.UserID) (bool, error) {
			got = by
			return true, nil
		}}
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodPost, path), actor.String())
		rr := testutil.DoRequest(newTestRouter(svc), req)

		testutil.AssertStatusOK(t, rr)
		require.NotNil(t, got)
		assert.Equal(t, id.UserID(actor), *got)
	})

	t.Run("system resolution without actor", func(t *testing.T) {
		called := false
		svc := &stubService{resolve: func(_ context.Context, _ id.ConflictID, by *id.UserID) (bool, error) {
			called = true
			assert.Nil(t, by)
			return true, nil
		}}
		rr := testutil.DoRequest(newTestRouter(svc), testutil.NewRequest(t, http.MethodPost, path))
		testutil.AssertStatusOK(t, rr)
		assert.True(t, called)
	})

	t.Run("unknown conflict", func(t *testing.T) {
		svc := &stubService{resolve: func(context.Context, id.ConflictID, *id.UserID) (bool, error) {
			return false, nil
		}}
		rr := testutil.DoRequest(newTestRouter(svc), testutil.NewRequest(t, http.MethodPost, path))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("bad resolved_by", func(t *testing.T) {
		svc := &stubService{}
		rr := testutil.DoRequest(newTestRouter(svc),
			testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"resolved_by": "nobody"}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})

	t.Run("unknown body field", func(t *testing.T) {
		svc := &stubService{}
		rr := testutil.DoRequest(newTestRouter(svc),
			testutil.NewJSONRequest(t, http.MethodPost, path, map[string]string{"who": "me"}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &stubService{resolve: func(context.Context, id.ConflictID, *id.UserID) (bool, error) {
			return false, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "resolve_duplicate failed")
		}}
		rr := testutil.DoRequest(newTestRouter(svc), testutil.NewRequest(t, http.MethodPost, path))
		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	})
}

func TestOpsEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)

	t.Run("health and metrics by route pattern", func(t *testing.T) {
		router := newTestRouter(&stubService{}, WithRequestMetrics(m))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
		assert.NotEmpty(t, rr.Header().Get(metadata.HeaderRequestID))
		assert.InDelta(t, 1, prom.ToFloat64(m.RequestsTotal.WithLabelValues("/healthz", "200")), 0)
	})

	t.Run("readiness reports unavailable dependencies", func(t *testing.T) {
		router := newTestRouter(&stubService{}, WithReadiness(func(context.Context) error {
			return errors.New("postgres unreachable")
		}))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/readyz"))
		testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, "unavailable")
	})
}

func TestDetectDuplicatesAgainstService(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	extractor := mocks.NewMockTextExtractor(ctrl)
	mem := store.NewInMemory()
	builder := conflicts.NewBuilder()
	svc := service.New(mem, documents.NewScanner(extractor, builder), builder)

	first := &models.Application{
		ID: id.NewApplicationID(), NationalID: "123456/10/1", ApplicantName: "Mwansa Phiri",
		Status: models.ApplicationStatusApproved, SubmittedAt: time.Now().Add(-time.Hour),
	}
	second := &models.Application{
		ID: id.NewApplicationID(), NationalID: "123456/10/1", ApplicantName: "Mwansa Phiri",
		Status: models.ApplicationStatusPending, SubmittedAt: time.Now(),
	}
	require.NoError(t, mem.SaveApplication(ctx, first))
	require.NoError(t, mem.SaveApplication(ctx, second))

	router := NewRouter(NewHandler(svc, quietLogger()),
		WithMetricsHandler(promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})))
	path := "/applications/" + second.ID.String() + "/detect-duplicates"

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, path))
	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[DetectionResponse](t, rr)
	require.Equal(t, 1, resp.DuplicatesFound)
	assert.Equal(t, string(models.ConflictTypeIdentityDuplicate), resp.Conflicts[0].Type)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, path))
	resp = testutil.UnmarshalResponse[DetectionResponse](t, rr)
	assert.Zero(t, resp.DuplicatesFound, "second run creates nothing new")

	stored, err := mem.FindApplication(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusConflict, stored.Status)
}
