package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/api/responses"
	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

type entitlementResponse struct {
	UserID              uuid.UUID  `json:"user_id"`
	Email               string     `json:"email"`
	PlanType            string     `json:"plan_type"`
	PhotosLimit         int        `json:"photos_limit"`
	PhotosUsed          int        `json:"photos_used"`
	CreditsRemaining    int        `json:"credits_remaining"`
	SubscriptionStatus  string     `json:"subscription_status"`
	PendingPlanType     *string    `json:"pending_plan_type,omitempty"`
	PendingPhotosLimit  *int       `json:"pending_photos_limit,omitempty"`
	CancellationDate    *time.Time `json:"cancellation_date,omitempty"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	CurrentPeriodStart  *time.Time `json:"current_period_start,omitempty"`
}

type EntitlementReader interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error)
}

type expiryApplier interface {
	ApplyExpiryIfDue(ctx context.Context, ent *models.Entitlement) (bool, error)
}

// Entitlement returns the caller's current entitlement snapshot. A canceled
// subscription whose paid window has lapsed is demoted to the free tier before
// the snapshot is built, so readers never see stale paid access.
func Entitlement(store EntitlementReader, engine expiryApplier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if store == nil || engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		userID, err := resolveUserID(ctx, r.URL.Query().Get("user_id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ent, err := store.Load(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if ent == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found"))
			return
		}

		if _, err := engine.ApplyExpiryIfDue(ctx, ent); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toEntitlementResponse(ent))
	}
}

func toEntitlementResponse(ent *models.Entitlement) entitlementResponse {
	resp := entitlementResponse{
		UserID:              ent.UserID,
		Email:               ent.Email,
		PlanType:            ent.PlanType.String(),
		PhotosLimit:         ent.PhotosLimit,
		PhotosUsed:          ent.PhotosUsed,
		CreditsRemaining:    ent.CreditsRemaining(),
		SubscriptionStatus:  ent.SubscriptionStatus.String(),
		PendingPhotosLimit:  ent.PendingPhotosLimit,
		CancellationDate:    ent.CancellationDate,
		SubscriptionEndDate: ent.SubscriptionEndDate,
		CurrentPeriodStart:  ent.CurrentPeriodStart,
	}
	if ent.PendingPlanType != nil {
		pending := ent.PendingPlanType.String()
		resp.PendingPlanType = &pending
	}
	return resp
}
