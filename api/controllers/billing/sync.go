package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/api/responses"
	"github.com/stagelyhq/stagely-backend/api/validators"
	"github.com/stagelyhq/stagely-backend/internal/creditsync"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

type syncRequest struct {
	UserID string `json:"user_id,omitempty" validate:"omitempty,uuid"`
}

type SyncService interface {
	SyncUser(ctx context.Context, userID uuid.UUID) (*creditsync.Result, error)
	SyncAll(ctx context.Context) (*creditsync.Result, error)
}

// Sync triggers a reconciliation pass. With a user id it repairs a single
// account; without one it sweeps the whole primary table.
func Sync(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		var payload syncRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		if raw := strings.TrimSpace(payload.UserID); raw != "" {
			userID, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid user id"))
				return
			}
			result, err := svc.SyncUser(ctx, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
			return
		}

		result, err := svc.SyncAll(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
