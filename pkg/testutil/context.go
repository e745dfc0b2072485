package testutil

import (
	"net/http"

	id "landreg/pkg/domain"
	"landreg/pkg/requestcontext"
)

// WithActor adds the acting user to the request context, as the metadata
// middleware would. Invalid IDs are silently ignored.
func WithActor(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithActor(req.Context(), parsed))
	}
	return req
}
