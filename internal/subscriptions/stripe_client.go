package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/stagelyhq/stagely-backend/pkg/stripe"
)

// StripeSubscriptionClient exposes the subset of Stripe operations required by
// the webhook and cancellation paths.
type StripeSubscriptionClient interface {
	Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	Cancel(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
	FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the provided Stripe client so callers can be tested.
func NewStripeClient(api *pkgstripe.Client) StripeSubscriptionClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params == nil {
		params = &stripe.SubscriptionParams{}
	}
	params.Context = ctx
	return subscription.Get(id, params)
}

func (w *stripeClientWrapper) Cancel(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Cancel(id, params)
}

func (w *stripeClientWrapper) ListByCustomer(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	iter := subscription.List(params)

	var subs []*stripe.Subscription
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (w *stripeClientWrapper) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	iter := customer.List(params)
	for iter.Next() {
		return iter.Customer(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}
