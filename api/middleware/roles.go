package middleware

import (
	"net/http"

	"github.com/stagelyhq/stagely-backend/api/responses"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// RequireRole gates a route on the actor role seeded by Auth. Admin billing
// surfaces (overrides, forced sync) sit behind this.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actual := RoleFromContext(r.Context())
			if actual != role {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "role required").
					WithDetails(map[string]any{"required_role": role})
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
