package entitlements

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/internal/plans"
	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// Engine owns every entitlement state transition. All writes flow through the
// store adapter so both tables stay within one reconciliation pass of each
// other. Transitions are idempotent: replaying a delivered event converges on
// the same row.
type Engine struct {
	logg     *logger.Logger
	store    *Store
	resolver *plans.Resolver
	now      func() time.Time
}

// EngineParams wires the engine dependencies.
type EngineParams struct {
	Logger   *logger.Logger
	Store    *Store
	Resolver *plans.Resolver
	Now      func() time.Time
}

// NewEngine validates dependencies and builds the transition engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store is required")
	}
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan resolver is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logg:     params.Logger,
		store:    params.Store,
		resolver: params.Resolver,
		now:      now,
	}, nil
}

// ActivationInput carries the provider state for a new or reactivated subscription.
type ActivationInput struct {
	UserID         uuid.UUID
	Email          string
	CustomerID     string
	SubscriptionID string
	Plan           plans.Plan
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// ActivateSubscription moves a user onto a paid tier. Replays with the same
// subscription id refresh period metadata without touching usage; a new
// subscription id grants a fresh allotment.
func (e *Engine) ActivateSubscription(ctx context.Context, input ActivationInput) (*models.Entitlement, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	ent, err := e.store.Load(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	if ent == nil {
		ent = &models.Entitlement{UserID: input.UserID, Email: input.Email}
	}

	sameSubscription := ent.StripeSubscriptionID != nil &&
		input.SubscriptionID != "" &&
		*ent.StripeSubscriptionID == input.SubscriptionID

	if !sameSubscription || ent.SubscriptionStatus != enums.SubscriptionStatusActive {
		ent.PhotosUsed = 0
	}

	if input.Email != "" {
		ent.Email = input.Email
	}
	ent.PlanType = input.Plan.Type
	ent.PhotosLimit = input.Plan.PhotosLimit
	ent.SubscriptionStatus = enums.SubscriptionStatusActive
	ent.StripeCustomerID = optionalString(input.CustomerID)
	ent.StripeSubscriptionID = optionalString(input.SubscriptionID)
	ent.PendingPlanType = nil
	ent.PendingPhotosLimit = nil
	ent.CancellationDate = nil
	ent.SubscriptionEndDate = nil
	ent.CurrentPeriodStart = input.PeriodStart

	if err := e.store.Upsert(ctx, ent); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":   ent.UserID.String(),
		"plan_type": ent.PlanType.String(),
		"limit":     ent.PhotosLimit,
	})
	e.logg.Info(logCtx, "subscription activated")
	return ent, nil
}

// ApplyPlanChange switches tiers mid-cycle. Changes that keep or raise the
// allotment take effect immediately. Downgrades relabel the plan now but defer
// the limit reduction to renewal so already-purchased credits survive the
// cycle. A downgrade whose billing period the entitlement has already rolled
// past is applied in full: the renewal it would defer to has come and gone,
// the event was just delivered late.
func (e *Engine) ApplyPlanChange(ctx context.Context, userID uuid.UUID, newPlan plans.Plan, periodStart *time.Time) (*models.Entitlement, error) {
	ent, err := e.requireEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	applyNow := newPlan.PhotosLimit >= ent.PhotosLimit ||
		periodRolledPast(ent.CurrentPeriodStart, periodStart)

	if applyNow {
		ent.PlanType = newPlan.Type
		ent.PhotosLimit = newPlan.PhotosLimit
		ent.PendingPlanType = nil
		ent.PendingPhotosLimit = nil
	} else {
		pendingType := newPlan.Type
		pendingLimit := newPlan.PhotosLimit
		ent.PlanType = newPlan.Type
		ent.PendingPlanType = &pendingType
		ent.PendingPhotosLimit = &pendingLimit
	}

	if err := e.store.Upsert(ctx, ent); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":   ent.UserID.String(),
		"plan_type": ent.PlanType.String(),
		"deferred":  ent.HasPendingDowngrade(),
	})
	e.logg.Info(logCtx, "plan change applied")
	return ent, nil
}

// ApplyRenewal starts a fresh billing cycle: usage resets, any deferred
// downgrade takes effect, and stale or replayed periods are ignored.
func (e *Engine) ApplyRenewal(ctx context.Context, userID uuid.UUID, periodStart, periodEnd *time.Time) (*models.Entitlement, error) {
	ent, err := e.requireEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	if periodStart != nil && ent.CurrentPeriodStart != nil && !periodStart.After(*ent.CurrentPeriodStart) {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"user_id":      ent.UserID.String(),
			"period_start": periodStart,
		})
		e.logg.Info(logCtx, "renewal period not newer than current; skipping")
		return ent, nil
	}

	if ent.PendingPhotosLimit != nil {
		ent.PhotosLimit = *ent.PendingPhotosLimit
		if ent.PendingPlanType != nil {
			ent.PlanType = *ent.PendingPlanType
		}
	} else {
		ent.PhotosLimit = e.resolver.PlanFor(ent.PlanType).PhotosLimit
	}
	ent.PendingPlanType = nil
	ent.PendingPhotosLimit = nil
	ent.PhotosUsed = 0
	ent.SubscriptionStatus = enums.SubscriptionStatusActive
	ent.CancellationDate = nil
	ent.SubscriptionEndDate = nil
	ent.CurrentPeriodStart = periodStart

	if err := e.store.Upsert(ctx, ent); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":   ent.UserID.String(),
		"plan_type": ent.PlanType.String(),
		"limit":     ent.PhotosLimit,
	})
	e.logg.Info(logCtx, "renewal applied; usage reset")
	return ent, nil
}

// ApplyCancellation flips the status to canceled while preserving the plan
// label and remaining credits until the paid period runs out.
func (e *Engine) ApplyCancellation(ctx context.Context, userID uuid.UUID, canceledAt time.Time, endDate *time.Time) (*models.Entitlement, error) {
	ent, err := e.requireEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ent.SubscriptionStatus == enums.SubscriptionStatusCanceled {
		// Replay: keep the original dates.
		if ent.SubscriptionEndDate == nil {
			ent.SubscriptionEndDate = endDate
			if err := e.store.Upsert(ctx, ent); err != nil {
				return nil, err
			}
		}
		return ent, nil
	}

	ent.SubscriptionStatus = enums.SubscriptionStatusCanceled
	ent.CancellationDate = &canceledAt
	ent.SubscriptionEndDate = endDate

	if err := e.store.Upsert(ctx, ent); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":  ent.UserID.String(),
		"end_date": ent.SubscriptionEndDate,
	})
	e.logg.Info(logCtx, "cancellation recorded; access retained until period end")
	return ent, nil
}

// ApplyExpiryIfDue lazily demotes a canceled entitlement to the free tier once
// its end date has passed. Reports whether a transition happened.
func (e *Engine) ApplyExpiryIfDue(ctx context.Context, ent *models.Entitlement) (bool, error) {
	if ent == nil {
		return false, nil
	}
	if ent.SubscriptionStatus != enums.SubscriptionStatusCanceled {
		return false, nil
	}
	if ent.SubscriptionEndDate == nil || e.now().Before(*ent.SubscriptionEndDate) {
		return false, nil
	}

	free := e.resolver.FreePlan()
	ent.PlanType = free.Type
	ent.PhotosLimit = free.PhotosLimit
	ent.PhotosUsed = 0
	ent.SubscriptionStatus = enums.SubscriptionStatusInactive
	ent.StripeSubscriptionID = nil
	ent.PendingPlanType = nil
	ent.PendingPhotosLimit = nil
	ent.CurrentPeriodStart = nil

	if err := e.store.Upsert(ctx, ent); err != nil {
		return false, err
	}

	logCtx := e.logg.WithField(ctx, "user_id", ent.UserID.String())
	e.logg.Info(logCtx, "canceled subscription expired; reset to free tier")
	return true, nil
}

// OverrideInput is the admin grant surface.
type OverrideInput struct {
	UserID      uuid.UUID
	Email       string
	PlanType    *enums.PlanType
	PhotosLimit int
	Absolute    bool
}

// ApplyOverride lets support grant credits or force a tier. Relative grants
// add to the current limit; absolute ones replace it.
func (e *Engine) ApplyOverride(ctx context.Context, input OverrideInput) (*models.Entitlement, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PhotosLimit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "photos limit must not be negative")
	}

	ent, err := e.store.Load(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		free := e.resolver.FreePlan()
		ent = &models.Entitlement{
			UserID:             input.UserID,
			Email:              input.Email,
			PlanType:           free.Type,
			PhotosLimit:        free.PhotosLimit,
			SubscriptionStatus: enums.SubscriptionStatusInactive,
		}
	}

	if input.PlanType != nil {
		if !input.PlanType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type")
		}
		ent.PlanType = *input.PlanType
	}
	if input.Absolute {
		ent.PhotosLimit = input.PhotosLimit
	} else {
		ent.PhotosLimit += input.PhotosLimit
	}

	if err := e.store.Upsert(ctx, ent); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"user_id":   ent.UserID.String(),
		"plan_type": ent.PlanType.String(),
		"limit":     ent.PhotosLimit,
		"absolute":  input.Absolute,
	})
	e.logg.Info(logCtx, "admin entitlement override applied")
	return ent, nil
}

func (e *Engine) requireEntitlement(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ent, err := e.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found").
			WithDetails(map[string]any{"user_id": userID.String()})
	}
	return ent, nil
}

// periodRolledPast reports whether the entitlement has renewed into a later
// billing period than the one the event describes.
func periodRolledPast(current, event *time.Time) bool {
	return current != nil && event != nil && event.Before(*current)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
