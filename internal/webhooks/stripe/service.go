package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/internal/identity"
	"github.com/stagelyhq/stagely-backend/internal/plans"
	"github.com/stagelyhq/stagely-backend/internal/subscriptions"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
	"github.com/stagelyhq/stagely-backend/pkg/metrics"
)

const (
	outcomeApplied    = "applied"
	outcomeIgnored    = "ignored"
	outcomeUnresolved = "unresolved"
	outcomeFailed     = "failed"
)

// ServiceParams wires the webhook service dependencies.
type ServiceParams struct {
	Logger       *logger.Logger
	Engine       *entitlements.Engine
	Identity     *identity.Resolver
	Plans        *plans.Resolver
	StripeClient subscriptions.StripeSubscriptionClient
	Metrics      *metrics.BillingMetrics
	Now          func() time.Time
}

// Service turns verified Stripe events into entitlement transitions.
type Service struct {
	logg     *logger.Logger
	engine   *entitlements.Engine
	identity *identity.Resolver
	plans    *plans.Resolver
	stripe   subscriptions.StripeSubscriptionClient
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement engine required")
	}
	if params.Identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity resolver required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan resolver required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		engine:   params.Engine,
		identity: params.Identity,
		plans:    params.Plans,
		stripe:   params.StripeClient,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// HandleEvent classifies, resolves and applies one verified event. Resolution
// misses are logged and acknowledged so the provider does not redeliver an
// event we can never apply; dependency failures propagate so it does.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	classified, err := Classify(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "classify stripe event")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   classified.EventID,
		"event_kind": string(classified.Kind),
	})

	if classified.Kind == KindIgnored {
		s.metrics.ObserveWebhookEvent(string(classified.Kind), outcomeIgnored)
		s.logg.Info(logCtx, "stripe event ignored")
		return nil
	}

	if classified.Subscription == nil && classified.SubscriptionID != "" {
		if err := s.enrich(logCtx, &classified); err != nil {
			s.metrics.ObserveWebhookEvent(string(classified.Kind), outcomeFailed)
			return err
		}
	}

	userID, err := s.identity.Resolve(logCtx, identity.ResolveInput{
		CustomerID: classified.CustomerID,
		Email:      classified.CustomerEmail,
		EventID:    classified.EventID,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			// Redelivery cannot fix an unknown identity; acknowledge and
			// leave the full context in the log for manual follow-up.
			s.logg.Error(logCtx, "webhook user resolution failed; event acknowledged", err)
			s.metrics.ObserveWebhookEvent(string(classified.Kind), outcomeUnresolved)
			return nil
		}
		s.metrics.ObserveWebhookEvent(string(classified.Kind), outcomeFailed)
		return err
	}

	if err := s.apply(logCtx, userID, classified); err != nil {
		s.metrics.ObserveWebhookEvent(string(classified.Kind), outcomeFailed)
		return err
	}
	s.metrics.ObserveWebhookEvent(string(classified.Kind), outcomeApplied)
	return nil
}

// enrich fetches the subscription behind an id-only event (invoice renewal,
// checkout completion) so the transition has customer and period data.
func (s *Service) enrich(ctx context.Context, classified *ClassifiedEvent) error {
	sub, err := s.stripe.Get(ctx, classified.SubscriptionID, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	email := classified.CustomerEmail
	fillFromSubscription(classified, sub)
	if classified.CustomerEmail == "" {
		classified.CustomerEmail = email
	}
	return nil
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, classified ClassifiedEvent) error {
	switch classified.Kind {
	case KindNewSubscription:
		return s.activate(ctx, userID, classified)

	case KindPlanChange:
		plan, source := s.plans.Resolve(ctx, classified.PriceID)
		_, err := s.engine.ApplyPlanChange(ctx, userID, plan, classified.PeriodStart)
		if isNotFound(err) {
			// Plan change for a user without a row: the provider says they
			// are subscribed, so treat it as an activation.
			err = s.activate(ctx, userID, classified)
		}
		if err == nil && source == plans.SourceHeuristic {
			s.logg.Warn(s.logg.WithField(ctx, "price_id", classified.PriceID), "plan change applied via heuristic resolution")
		}
		return err

	case KindRenewal:
		_, err := s.engine.ApplyRenewal(ctx, userID, classified.PeriodStart, classified.PeriodEnd)
		if isNotFound(err) {
			err = s.activate(ctx, userID, classified)
		}
		return err

	case KindCancellation:
		canceledAt := s.now().UTC()
		if classified.CanceledAt != nil {
			canceledAt = *classified.CanceledAt
		}
		endDate := classified.CancelAt
		if endDate == nil {
			endDate = classified.PeriodEnd
		}
		_, err := s.engine.ApplyCancellation(ctx, userID, canceledAt, endDate)
		if isNotFound(err) {
			s.logg.Warn(ctx, "cancellation for unknown entitlement; acknowledged")
			return nil
		}
		return err

	default:
		return nil
	}
}

func (s *Service) activate(ctx context.Context, userID uuid.UUID, classified ClassifiedEvent) error {
	plan, _ := s.plans.Resolve(ctx, classified.PriceID)
	_, err := s.engine.ActivateSubscription(ctx, entitlements.ActivationInput{
		UserID:         userID,
		Email:          classified.CustomerEmail,
		CustomerID:     classified.CustomerID,
		SubscriptionID: classified.SubscriptionID,
		Plan:           plan,
		PeriodStart:    classified.PeriodStart,
		PeriodEnd:      classified.PeriodEnd,
	})
	return err
}

func isNotFound(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeNotFound)
}
