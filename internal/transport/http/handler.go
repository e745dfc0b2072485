package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"landreg/internal/registry/models"
	id "landreg/pkg/domain"
	dErrors "landreg/pkg/domain-errors"
	"landreg/pkg/platform/httputil"
	"landreg/pkg/requestcontext"
)

// Service is the detection engine as seen by the HTTP layer.
type Service interface {
	DetectAllDuplicates(ctx context.Context, appID id.ApplicationID) ([]*models.Conflict, error)
	DetectDocumentConflicts(ctx context.Context, appID id.ApplicationID) ([]*models.Conflict, error)
	ResolveDuplicate(ctx context.Context, conflictID id.ConflictID, resolvedBy *id.UserID) (bool, error)
}

// Handler wires detection endpoints to the detection service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts detection endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications/{applicationID}/detect-duplicates", h.HandleDetectDuplicates)
	r.Post("/applications/{applicationID}/detect-document-conflicts", h.HandleDetectDocumentConflicts)
	r.Post("/conflicts/{conflictID}/resolve", h.HandleResolve)
}

// HandleDetectDuplicates handles POST /applications/{applicationID}/detect-duplicates.
func (h *Handler) HandleDetectDuplicates(w http.ResponseWriter, r *http.Request) {
	h.detect(w, r, "duplicate detection", h.service.DetectAllDuplicates)
}

// HandleDetectDocumentConflicts handles POST /applications/{applicationID}/detect-document-conflicts.
func (h *Handler) HandleDetectDocumentConflicts(w http.ResponseWriter, r *http.Request) {
	h.detect(w, r, "document analysis", h.service.DetectDocumentConflicts)
}

// detect answers 200 even when the run fails. A failed run is reported as
// degraded with no conflicts; the caller may trigger it again.
func (h *Handler) detect(w http.ResponseWriter, r *http.Request, what string,
	run func(context.Context, id.ApplicationID) ([]*models.Conflict, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := run(ctx, appID)
	if err != nil {
		h.logger.ErrorContext(ctx, what+" failed",
			"request_id", requestID,
			"application_id", appID,
			"error", err,
		)
		resp := fromConflicts(appID.String(), nil)
		resp.Degraded = true
		resp.Error = string(dErrors.CodeOf(err))
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	h.logger.InfoContext(ctx, what+" handled",
		"request_id", requestID,
		"application_id", appID,
		"duplicates_found", len(created),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, fromConflicts(appID.String(), created))
}

// HandleResolve handles POST /conflicts/{conflictID}/resolve. resolved_by
// defaults to the acting user from the request metadata.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	conflictID, err := id.ParseConflictID(chi.URLParam(r, "conflictID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[ResolveRequest](w, r, h.logger)
	if !ok {
		return
	}
	resolvedBy := req.resolvedBy
	if resolvedBy == nil {
		if actor := requestcontext.Actor(ctx); !actor.IsNil() {
			resolvedBy = &actor
		}
	}

	resolved, err := h.service.ResolveDuplicate(ctx, conflictID, resolvedBy)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve conflict failed",
			"request_id", requestID,
			"conflict_id", conflictID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if !resolved {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "conflict not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{ConflictID: conflictID.String(), Resolved: true})
}
