package stripewebhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
)

// EventKind is the semantic meaning of a raw Stripe event.
type EventKind string

const (
	KindNewSubscription EventKind = "new_subscription"
	KindRenewal         EventKind = "renewal"
	KindPlanChange      EventKind = "plan_change"
	KindCancellation    EventKind = "cancellation"
	KindIgnored         EventKind = "ignored"
)

// ClassifiedEvent is the provider-neutral description handed to the engine.
// Subscription is populated for customer.subscription.* events; invoice-based
// renewals carry only SubscriptionID and must be enriched by a provider fetch.
type ClassifiedEvent struct {
	Kind           EventKind
	EventID        string
	Subscription   *stripe.Subscription
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	PriceID        string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	CanceledAt     *time.Time
	CancelAt       *time.Time
}

// Classify maps a verified Stripe event onto its semantic kind. Unknown event
// types classify as ignored rather than erroring, since the endpoint is
// subscribed to a broader set than it consumes.
func Classify(event *stripe.Event) (ClassifiedEvent, error) {
	if event == nil || event.Data == nil {
		return ClassifiedEvent{}, fmt.Errorf("stripe event data required")
	}

	out := ClassifiedEvent{Kind: KindIgnored, EventID: event.ID}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated:
		sub, err := decodeSubscription(event)
		if err != nil {
			return out, err
		}
		out.Kind = KindNewSubscription
		fillFromSubscription(&out, sub)
		return out, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		sub, err := decodeSubscription(event)
		if err != nil {
			return out, err
		}
		out.Kind = KindCancellation
		fillFromSubscription(&out, sub)
		return out, nil

	case stripe.EventTypeCustomerSubscriptionUpdated:
		sub, err := decodeSubscription(event)
		if err != nil {
			return out, err
		}
		fillFromSubscription(&out, sub)
		prev := event.Data.PreviousAttributes

		switch {
		case sub.CancelAtPeriodEnd && previousHasKey(prev, "cancel_at_period_end"):
			out.Kind = KindCancellation
		case previousHasPeriodStart(prev):
			out.Kind = KindRenewal
		case previousHasKey(prev, "items") || previousHasKey(prev, "plan"):
			out.Kind = KindPlanChange
		default:
			out.Kind = KindIgnored
		}
		return out, nil

	case stripe.EventTypeCheckoutSessionCompleted:
		// One-time payment checkouts carry no subscription; only the
		// subscription mode starts an entitlement.
		if event.GetObjectValue("mode") != string(stripe.CheckoutSessionModeSubscription) {
			return out, nil
		}
		subscriptionID := event.GetObjectValue("subscription")
		if subscriptionID == "" {
			return out, nil
		}
		out.Kind = KindNewSubscription
		out.SubscriptionID = subscriptionID
		out.CustomerID = event.GetObjectValue("customer")
		out.CustomerEmail = checkoutEmail(event)
		return out, nil

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaid:
		// Only cycle invoices renew; the initial invoice rides the
		// subscription.created event.
		if event.GetObjectValue("billing_reason") != "subscription_cycle" {
			return out, nil
		}
		subscriptionID := invoiceSubscriptionID(event)
		if subscriptionID == "" {
			return out, nil
		}
		out.Kind = KindRenewal
		out.SubscriptionID = subscriptionID
		out.CustomerID = event.GetObjectValue("customer")
		out.CustomerEmail = event.GetObjectValue("customer_email")
		return out, nil

	default:
		return out, nil
	}
}

func decodeSubscription(event *stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription event: %w", err)
	}
	return &sub, nil
}

func fillFromSubscription(out *ClassifiedEvent, sub *stripe.Subscription) {
	out.Subscription = sub
	out.SubscriptionID = sub.ID
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
		out.CustomerEmail = sub.Customer.Email
	}
	if item := firstItem(sub); item != nil {
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.PeriodStart = timeFromUnix(item.CurrentPeriodStart)
		out.PeriodEnd = timeFromUnix(item.CurrentPeriodEnd)
	}
	out.CanceledAt = timeFromUnix(sub.CanceledAt)
	out.CancelAt = timeFromUnix(sub.CancelAt)
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

func checkoutEmail(event *stripe.Event) string {
	if email := event.GetObjectValue("customer_details", "email"); email != "" {
		return email
	}
	return event.GetObjectValue("customer_email")
}

func invoiceSubscriptionID(event *stripe.Event) string {
	if id := event.GetObjectValue("subscription"); id != "" {
		return id
	}
	// Newer API shapes nest the subscription under parent.subscription_details.
	return event.GetObjectValue("parent", "subscription_details", "subscription")
}

// previousHasPeriodStart detects a billing cycle rollover: Stripe reports the
// old current_period_start either top-level or nested under items.data.
func previousHasPeriodStart(prev map[string]interface{}) bool {
	if prev == nil {
		return false
	}
	if _, ok := prev["current_period_start"]; ok {
		return true
	}
	items, ok := prev["items"].(map[string]interface{})
	if !ok {
		return false
	}
	data, ok := items["data"].([]interface{})
	if !ok {
		return false
	}
	for _, raw := range data {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if _, ok := entry["current_period_start"]; ok {
			return true
		}
	}
	return false
}

func previousHasKey(prev map[string]interface{}, key string) bool {
	if prev == nil {
		return false
	}
	_, ok := prev[strings.TrimSpace(key)]
	return ok
}

func timeFromUnix(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
