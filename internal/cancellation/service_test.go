package cancellation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/internal/plans"
	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

type memPrimary struct {
	entitlements.PrimaryRepository
	rows map[uuid.UUID]models.Entitlement
}

func (m *memPrimary) Create(ctx context.Context, ent *models.Entitlement) error {
	m.rows[ent.UserID] = *ent
	return nil
}

func (m *memPrimary) Update(ctx context.Context, ent *models.Entitlement) error {
	m.rows[ent.UserID] = *ent
	return nil
}

func (m *memPrimary) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error) {
	ent, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	copied := ent
	return &copied, nil
}

type memSecondary struct {
	entitlements.SecondaryRepository
	rows map[uuid.UUID]models.Profile
}

func (m *memSecondary) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	copied := profile
	return &copied, nil
}

func (m *memSecondary) Upsert(ctx context.Context, profile *models.Profile) error {
	m.rows[profile.UserID] = *profile
	return nil
}

type stubStripe struct {
	cancelErr    error
	canceledSubs []string
	periodEnd    int64
	listSubs     []*stripe.Subscription
	listErr      error
	customer     *stripe.Customer
	customerErr  error
}

func (s *stubStripe) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStripe) Cancel(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	s.canceledSubs = append(s.canceledSubs, id)
	sub := &stripe.Subscription{ID: id}
	if s.periodEnd > 0 {
		sub.Items = &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{CurrentPeriodEnd: s.periodEnd}},
		}
	}
	return sub, nil
}

func (s *stubStripe) ListByCustomer(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	return s.listSubs, s.listErr
}

func (s *stubStripe) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	return s.customer, s.customerErr
}

func newTestService(t *testing.T, stripeClient *stubStripe, now func() time.Time) (*Service, *memPrimary) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "cancel-test"})
	primary := &memPrimary{rows: make(map[uuid.UUID]models.Entitlement)}
	secondary := &memSecondary{rows: make(map[uuid.UUID]models.Profile)}

	store, err := entitlements.NewStore(entitlements.StoreParams{
		Logger:    logg,
		Primary:   primary,
		Secondary: secondary,
	})
	if err != nil {
		t.Fatalf("construct store: %v", err)
	}
	engine, err := entitlements.NewEngine(entitlements.EngineParams{
		Logger:   logg,
		Store:    store,
		Resolver: plans.NewResolver(config.PlansConfig{StandardPhotoLimit: 50, AgencyPhotoLimit: 300, FreePhotoLimit: 5}, logg),
		Now:      now,
	})
	if err != nil {
		t.Fatalf("construct engine: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:       logg,
		Store:        store,
		Engine:       engine,
		StripeClient: stripeClient,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc, primary
}

func TestCancelUsesProviderPeriodEnd(t *testing.T) {
	providerEnd := time.Now().UTC().Add(20 * 24 * time.Hour).Truncate(time.Second)
	stripeClient := &stubStripe{periodEnd: providerEnd.Unix()}
	svc, primary := newTestService(t, stripeClient, nil)

	userID := uuid.New()
	subID := "sub_123"
	primary.rows[userID] = models.Entitlement{
		UserID:               userID,
		Email:                "user@example.com",
		PlanType:             enums.PlanTypeStandard,
		PhotosLimit:          50,
		PhotosUsed:           10,
		SubscriptionStatus:   enums.SubscriptionStatusActive,
		StripeSubscriptionID: &subID,
	}

	result, err := svc.Cancel(context.Background(), CancelInput{UserID: userID})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if len(stripeClient.canceledSubs) != 1 || stripeClient.canceledSubs[0] != subID {
		t.Fatalf("provider cancel not called with stored id: %v", stripeClient.canceledSubs)
	}
	if result.SubscriptionEndDate == nil || !result.SubscriptionEndDate.Equal(providerEnd) {
		t.Fatalf("expected provider period end, got %v", result.SubscriptionEndDate)
	}
	if result.PlanType != enums.PlanTypeStandard || result.PhotosLimit != 50 {
		t.Fatalf("plan must survive cancellation: %s/%d", result.PlanType, result.PhotosLimit)
	}
}

func TestCancelSucceedsWhenProviderFails(t *testing.T) {
	fixed := time.Now().UTC()
	stripeClient := &stubStripe{cancelErr: errors.New("stripe down")}
	svc, primary := newTestService(t, stripeClient, func() time.Time { return fixed })

	userID := uuid.New()
	subID := "sub_123"
	primary.rows[userID] = models.Entitlement{
		UserID:               userID,
		Email:                "user@example.com",
		PlanType:             enums.PlanTypeStandard,
		PhotosLimit:          50,
		SubscriptionStatus:   enums.SubscriptionStatusActive,
		StripeSubscriptionID: &subID,
	}

	result, err := svc.Cancel(context.Background(), CancelInput{UserID: userID})
	if err != nil {
		t.Fatalf("provider failure must not fail cancellation: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success despite provider outage")
	}
	fallback := fixed.AddDate(0, 0, fallbackAccessDays)
	if result.SubscriptionEndDate == nil || !result.SubscriptionEndDate.Equal(fallback) {
		t.Fatalf("expected %d-day fallback access window, got %v", fallbackAccessDays, result.SubscriptionEndDate)
	}
	stored := primary.rows[userID]
	if stored.SubscriptionStatus != enums.SubscriptionStatusCanceled {
		t.Fatalf("local record not canceled, status %s", stored.SubscriptionStatus)
	}
}

func TestCancelDiscoversSubscriptionFromCustomer(t *testing.T) {
	stripeClient := &stubStripe{
		listSubs: []*stripe.Subscription{
			{ID: "sub_old", Status: stripe.SubscriptionStatusCanceled},
			{ID: "sub_active", Status: stripe.SubscriptionStatusActive},
		},
	}
	svc, primary := newTestService(t, stripeClient, nil)

	userID := uuid.New()
	customerID := "cus_123"
	primary.rows[userID] = models.Entitlement{
		UserID:             userID,
		Email:              "user@example.com",
		PlanType:           enums.PlanTypeStandard,
		PhotosLimit:        50,
		SubscriptionStatus: enums.SubscriptionStatusActive,
		StripeCustomerID:   &customerID,
	}

	if _, err := svc.Cancel(context.Background(), CancelInput{UserID: userID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(stripeClient.canceledSubs) != 1 || stripeClient.canceledSubs[0] != "sub_active" {
		t.Fatalf("expected discovery to skip canceled subscriptions, got %v", stripeClient.canceledSubs)
	}
}

func TestCancelUnknownUserReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t, &stubStripe{}, nil)

	_, err := svc.Cancel(context.Background(), CancelInput{UserID: uuid.New()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
