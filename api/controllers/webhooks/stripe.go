package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/stagelyhq/stagely-backend/api/responses"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// maxEventBytes bounds webhook payload reads. Stripe events are a few KB.
const maxEventBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook handles Stripe subscription lifecycle events.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		event, err := verifiedEvent(r, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Info(logg.WithEventID(ctx, event.ID), "duplicate stripe delivery acknowledged")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			// Unmark so a provider redelivery can retry the event.
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}

// verifiedEvent reads the payload and checks the Stripe signature before any
// of it is trusted.
func verifiedEvent(r *http.Request, signingSecret string) (*stripe.Event, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body")
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}

	event, err := webhook.ConstructEvent(payload, sigHeader, signingSecret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return &event, nil
}
