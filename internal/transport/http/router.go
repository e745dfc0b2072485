// Package httptransport is the ops HTTP surface: health, metrics, and the
// triggers for detection runs and conflict resolution.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"landreg/internal/platform/metrics"
	dErrors "landreg/pkg/domain-errors"
	"landreg/pkg/platform/httputil"
	"landreg/pkg/platform/middleware/metadata"
	"landreg/pkg/platform/middleware/requesttime"
)

// ReadyFunc reports whether backing services are reachable.
type ReadyFunc func(ctx context.Context) error

type routerConfig struct {
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	ready          ReadyFunc
	logger         *slog.Logger
}

type RouterOption func(*routerConfig)

// WithRequestMetrics records per-route request counts and latency.
func WithRequestMetrics(m *metrics.Metrics) RouterOption {
	return func(c *routerConfig) { c.metrics = m }
}

// WithMetricsHandler overrides the /metrics handler; tests pass one backed by
// a private registry.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(c *routerConfig) { c.metricsHandler = h }
}

// WithReadiness makes /readyz call ready.
func WithReadiness(ready ReadyFunc) RouterOption {
	return func(c *routerConfig) { c.ready = ready }
}

func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(c *routerConfig) { c.logger = logger }
}

// NewRouter mounts the ops endpoints and the detection handler.
func NewRouter(h *Handler, opts ...RouterOption) http.Handler {
	cfg := routerConfig{metricsHandler: metrics.Handler(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.RequestMetadata)
	r.Use(observe(cfg.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ready != nil {
			if err := cfg.ready(r.Context()); err != nil {
				cfg.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "dependencies unavailable"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.metricsHandler)
	h.Register(r)
	return r
}

// observe labels requests by route pattern so IDs in paths do not explode
// label cardinality.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(route, strconv.Itoa(status), time.Since(start))
		})
	}
}
