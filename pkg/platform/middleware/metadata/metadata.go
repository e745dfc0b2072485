// Package metadata copies caller metadata from HTTP headers into the request
// context so services and audit entries can read it via requestcontext.
package metadata

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	id "landreg/pkg/domain"
	"landreg/pkg/requestcontext"
)

const (
	HeaderRequestID = "X-Request-ID"
	// HeaderActorID carries the registry officer's user ID. Authentication
	// happens upstream; this service trusts the gateway's header.
	HeaderActorID = "X-Actor-ID"
)

// maxRequestIDLength caps caller-provided correlation IDs.
const maxRequestIDLength = 128

// RequestMetadata sets the correlation ID (generated when absent or oversized)
// and the acting user, and echoes the correlation ID in the response.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		if actor, err := id.ParseUserID(r.Header.Get(HeaderActorID)); err == nil {
			ctx = requestcontext.WithActor(ctx, actor)
		}
		w.Header().Set(HeaderRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
