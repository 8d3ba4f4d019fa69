package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// Resolver maps billing-provider identities (customer id, email) onto internal
// user ids. Lookups try the email against both entitlement tables before
// falling back to the stored customer id mapping.
type Resolver struct {
	logg      *logger.Logger
	primary   entitlements.PrimaryRepository
	secondary entitlements.SecondaryRepository
}

// ResolverParams wires the resolver dependencies.
type ResolverParams struct {
	Logger    *logger.Logger
	Primary   entitlements.PrimaryRepository
	Secondary entitlements.SecondaryRepository
}

// NewResolver validates dependencies and builds the resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	if params.Primary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "primary repository is required")
	}
	if params.Secondary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "secondary repository is required")
	}
	return &Resolver{
		logg:      params.Logger,
		primary:   params.Primary,
		secondary: params.Secondary,
	}, nil
}

// ResolveInput carries every identity hint available on the inbound event.
type ResolveInput struct {
	CustomerID string
	Email      string
	EventID    string
}

// Resolve returns the internal user id for the provided hints. A miss returns
// a not-found error carrying the full lookup context so the caller can log and
// acknowledge without retrying.
func (r *Resolver) Resolve(ctx context.Context, input ResolveInput) (uuid.UUID, error) {
	customerID := strings.TrimSpace(input.CustomerID)
	email := strings.TrimSpace(strings.ToLower(input.Email))

	if email != "" {
		ent, err := r.primary.FindByEmail(ctx, email)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup by email")
		}
		if ent != nil {
			return ent.UserID, nil
		}

		profile, err := r.secondary.FindByEmail(ctx, email)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "legacy lookup by email")
		}
		if profile != nil {
			return profile.UserID, nil
		}
	}

	if customerID != "" {
		ent, err := r.primary.FindByStripeCustomerID(ctx, customerID)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup by customer id")
		}
		if ent != nil {
			return ent.UserID, nil
		}
	}

	return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "user resolution failed").
		WithDetails(map[string]any{
			"customer_id": customerID,
			"email":       email,
			"event_id":    input.EventID,
		})
}
