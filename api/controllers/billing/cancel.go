package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/api/middleware"
	"github.com/stagelyhq/stagely-backend/api/responses"
	"github.com/stagelyhq/stagely-backend/api/validators"
	"github.com/stagelyhq/stagely-backend/internal/cancellation"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

type cancelRequest struct {
	UserID         string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type CancelService interface {
	Cancel(ctx context.Context, input cancellation.CancelInput) (*cancellation.CancelResult, error)
}

// Cancel handles user-initiated subscription cancellation. The caller keeps
// paid access until the end of the current period.
func Cancel(svc CancelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		userID, err := resolveUserID(ctx, payload.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Cancel(ctx, cancellation.CancelInput{
			UserID:         userID,
			SubscriptionID: strings.TrimSpace(payload.SubscriptionID),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// resolveUserID prefers an explicit body value and falls back to the
// authenticated caller.
func resolveUserID(ctx context.Context, explicit string) (uuid.UUID, error) {
	raw := strings.TrimSpace(explicit)
	if raw == "" {
		raw = middleware.UserIDFromContext(ctx)
	}
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}
