package entitlements

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *fakePrimary, *fakeSecondary) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "store-test"})
	primary := newFakePrimary()
	secondary := newFakeSecondary()
	store, err := NewStore(StoreParams{Logger: logg, Primary: primary, Secondary: secondary})
	if err != nil {
		t.Fatalf("construct store: %v", err)
	}
	return store, primary, secondary
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	store, primary, secondary := newTestStore(t)
	userID := uuid.New()
	ent := &models.Entitlement{
		UserID:             userID,
		Email:              "user@example.com",
		PlanType:           enums.PlanTypeStandard,
		PhotosLimit:        50,
		SubscriptionStatus: enums.SubscriptionStatusActive,
	}

	if err := store.Upsert(context.Background(), ent); err != nil {
		t.Fatalf("upsert create: %v", err)
	}
	if primary.createCnt != 1 || primary.updateCnt != 0 {
		t.Fatalf("expected one create, got create=%d update=%d", primary.createCnt, primary.updateCnt)
	}
	if secondary.upsertCnt != 1 {
		t.Fatalf("expected profile mirror write, got %d", secondary.upsertCnt)
	}

	ent.PhotosLimit = 300
	if err := store.Upsert(context.Background(), ent); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if primary.updateCnt != 1 {
		t.Fatalf("expected one update, got %d", primary.updateCnt)
	}
	if secondary.rows[userID].PhotosLimit != 300 {
		t.Fatalf("mirror not refreshed, limit %d", secondary.rows[userID].PhotosLimit)
	}
}

func TestUpsertPrimaryFailurePropagates(t *testing.T) {
	store, primary, secondary := newTestStore(t)
	primary.createErr = errors.New("connection refused")

	err := store.Upsert(context.Background(), &models.Entitlement{UserID: uuid.New()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if secondary.upsertCnt != 0 {
		t.Fatalf("mirror must not run when primary write fails")
	}
}

func TestUpsertSecondaryFailureIsSwallowed(t *testing.T) {
	store, primary, secondary := newTestStore(t)
	secondary.upsertErr = errors.New("legacy table locked")
	userID := uuid.New()

	if err := store.Upsert(context.Background(), &models.Entitlement{UserID: userID}); err != nil {
		t.Fatalf("secondary failure must not fail the write: %v", err)
	}
	if _, ok := primary.rows[userID]; !ok {
		t.Fatalf("primary row missing")
	}
}

func TestLoadWrapsRepositoryError(t *testing.T) {
	store, primary, _ := newTestStore(t)
	primary.findErr = errors.New("timeout")

	_, err := store.Load(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
