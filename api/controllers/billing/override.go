package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/api/responses"
	"github.com/stagelyhq/stagely-backend/api/validators"
	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

type overrideRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	PlanType    string `json:"plan_type,omitempty"`
	PhotosLimit int    `json:"photos_limit" validate:"gte=0"`
	Absolute    bool   `json:"absolute,omitempty"`
}

type OverrideService interface {
	ApplyOverride(ctx context.Context, input entitlements.OverrideInput) (*models.Entitlement, error)
}

// Override lets support grant extra photo credits or force a plan tier.
func Override(svc OverrideService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		var payload overrideRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		userID, err := uuid.Parse(payload.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		input := entitlements.OverrideInput{
			UserID:      userID,
			Email:       strings.ToLower(strings.TrimSpace(payload.Email)),
			PhotosLimit: payload.PhotosLimit,
			Absolute:    payload.Absolute,
		}
		if raw := strings.TrimSpace(payload.PlanType); raw != "" {
			planType, parseErr := enums.ParsePlanType(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid plan type"))
				return
			}
			input.PlanType = &planType
		}

		ent, err := svc.ApplyOverride(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toEntitlementResponse(ent))
	}
}
