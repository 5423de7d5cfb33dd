package v1

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/fota/internal/reqid"
)

const headerRequestID = "X-Request-ID"

// RequestID honors an incoming X-Request-ID or generates a UUIDv4, stores
// it in the request context and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := reqid.With(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
