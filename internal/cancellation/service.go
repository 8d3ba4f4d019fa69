package cancellation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/internal/subscriptions"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

const (
	providerCallTimeout = 5 * time.Second
	fallbackAccessDays  = 30
)

// ServiceParams wires the cancellation workflow dependencies.
type ServiceParams struct {
	Logger       *logger.Logger
	Store        *entitlements.Store
	Engine       *entitlements.Engine
	StripeClient subscriptions.StripeSubscriptionClient
	Now          func() time.Time
}

// Service implements the user-initiated cancellation workflow. Provider calls
// are best-effort: once the user asked to cancel, the local record is updated
// even when Stripe is unreachable, and the sync pass trues things up later.
type Service struct {
	logg   *logger.Logger
	store  *entitlements.Store
	engine *entitlements.Engine
	stripe subscriptions.StripeSubscriptionClient
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement store required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement engine required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:   params.Logger,
		store:  params.Store,
		engine: params.Engine,
		stripe: params.StripeClient,
		now:    now,
	}, nil
}

// CancelInput identifies the subscription to cancel. SubscriptionID is
// optional; the workflow falls back to the stored id and then to provider
// discovery.
type CancelInput struct {
	UserID         uuid.UUID
	SubscriptionID string
}

// CancelResult is the user-facing outcome. Success is true whenever the local
// record was updated, regardless of provider reachability.
type CancelResult struct {
	Success             bool           `json:"success"`
	Message             string         `json:"message"`
	PlanType            enums.PlanType `json:"plan_type"`
	PhotosLimit         int            `json:"photos_limit"`
	SubscriptionEndDate *time.Time     `json:"subscription_end_date,omitempty"`
}

// Cancel runs the workflow: resolve the subscription, tell the provider
// best-effort, and record the cancellation locally.
func (s *Service) Cancel(ctx context.Context, input CancelInput) (*CancelResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	ent, err := s.store.Load(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entitlement not found").
			WithDetails(map[string]any{"user_id": input.UserID.String()})
	}

	logCtx := s.logg.WithUserID(ctx, input.UserID.String())

	subscriptionID := input.SubscriptionID
	if subscriptionID == "" && ent.StripeSubscriptionID != nil {
		subscriptionID = *ent.StripeSubscriptionID
	}
	if subscriptionID == "" {
		subscriptionID = s.discoverSubscription(logCtx, ent.Email, ent.StripeCustomerID)
	}

	var endDate *time.Time
	if subscriptionID != "" {
		endDate = s.cancelAtProvider(logCtx, subscriptionID)
	} else {
		s.logg.Warn(logCtx, "no provider subscription found; canceling locally only")
	}

	if endDate == nil {
		endDate = ent.SubscriptionEndDate
	}
	if endDate == nil {
		// Period end unknown (provider unreachable or no subscription on
		// file): grant the conventional remainder rather than cutting
		// access immediately.
		fallback := s.now().UTC().AddDate(0, 0, fallbackAccessDays)
		endDate = &fallback
	}

	updated, err := s.engine.ApplyCancellation(ctx, input.UserID, s.now().UTC(), endDate)
	if err != nil {
		return nil, err
	}

	return &CancelResult{
		Success:             true,
		Message:             "subscription canceled; access continues until the end of the paid period",
		PlanType:            updated.PlanType,
		PhotosLimit:         updated.PhotosLimit,
		SubscriptionEndDate: updated.SubscriptionEndDate,
	}, nil
}

// discoverSubscription asks the provider for an active subscription when no id
// is on file. Failures degrade to an empty id.
func (s *Service) discoverSubscription(ctx context.Context, email string, customerID *string) string {
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	id := ""
	if customerID != nil && *customerID != "" {
		id = s.firstSubscriptionFor(callCtx, *customerID)
	}
	if id == "" && email != "" {
		cust, err := s.stripe.FindCustomerByEmail(callCtx, email)
		if err != nil {
			s.logg.Error(ctx, "customer lookup by email failed", err)
			return ""
		}
		if cust != nil {
			id = s.firstSubscriptionFor(callCtx, cust.ID)
		}
	}
	return id
}

func (s *Service) firstSubscriptionFor(ctx context.Context, customerID string) string {
	subs, err := s.stripe.ListByCustomer(ctx, customerID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "customer_id", customerID), "subscription lookup failed", err)
		return ""
	}
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		switch sub.Status {
		case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
			continue
		}
		return sub.ID
	}
	return ""
}

// cancelAtProvider cancels remotely and extracts the period end. A provider
// failure is logged and the cancellation proceeds locally.
func (s *Service) cancelAtProvider(ctx context.Context, subscriptionID string) *time.Time {
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	sub, err := s.stripe.Cancel(callCtx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "subscription_id", subscriptionID), "provider cancellation failed; proceeding locally", err)
		return nil
	}
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	if end := sub.Items.Data[0].CurrentPeriodEnd; end > 0 {
		t := time.Unix(end, 0).UTC()
		return &t
	}
	return nil
}
