package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID honors an inbound request id when present so webhook deliveries
// and retries can be correlated across services, minting one otherwise.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, requestID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
