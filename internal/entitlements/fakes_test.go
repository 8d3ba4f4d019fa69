package entitlements

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
)

type fakePrimary struct {
	rows      map[uuid.UUID]models.Entitlement
	findErr   error
	createErr error
	updateErr error
	createCnt int
	updateCnt int
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{rows: make(map[uuid.UUID]models.Entitlement)}
}

func (f *fakePrimary) WithTx(*gorm.DB) PrimaryRepository { return f }

func (f *fakePrimary) Create(ctx context.Context, ent *models.Entitlement) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createCnt++
	f.rows[ent.UserID] = *ent
	return nil
}

func (f *fakePrimary) Update(ctx context.Context, ent *models.Entitlement) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCnt++
	f.rows[ent.UserID] = *ent
	return nil
}

func (f *fakePrimary) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	ent, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	copied := ent
	return &copied, nil
}

func (f *fakePrimary) FindByEmail(ctx context.Context, email string) (*models.Entitlement, error) {
	for _, ent := range f.rows {
		if ent.Email == email {
			copied := ent
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePrimary) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Entitlement, error) {
	for _, ent := range f.rows {
		if ent.StripeCustomerID != nil && *ent.StripeCustomerID == customerID {
			copied := ent
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePrimary) List(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.Entitlement, error) {
	ents := make([]models.Entitlement, 0, len(f.rows))
	for _, ent := range f.rows {
		if afterUserID != uuid.Nil && ent.UserID.String() <= afterUserID.String() {
			continue
		}
		ents = append(ents, ent)
	}
	sort.Slice(ents, func(i, j int) bool {
		return ents[i].UserID.String() < ents[j].UserID.String()
	})
	if limit > 0 && len(ents) > limit {
		ents = ents[:limit]
	}
	return ents, nil
}

func (f *fakePrimary) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Entitlement, error) {
	var ents []models.Entitlement
	for _, ent := range f.rows {
		if ent.SubscriptionStatus != enums.SubscriptionStatusCanceled {
			continue
		}
		if ent.SubscriptionEndDate == nil || ent.SubscriptionEndDate.After(now) {
			continue
		}
		ents = append(ents, ent)
	}
	return ents, nil
}

func (f *fakePrimary) ConsumeCredit(ctx context.Context, userID uuid.UUID) (bool, error) {
	ent, ok := f.rows[userID]
	if !ok || ent.PhotosUsed >= ent.PhotosLimit {
		return false, nil
	}
	ent.PhotosUsed++
	f.rows[userID] = ent
	return true, nil
}

type fakeSecondary struct {
	rows      map[uuid.UUID]models.Profile
	upsertErr error
	upsertCnt int
}

func newFakeSecondary() *fakeSecondary {
	return &fakeSecondary{rows: make(map[uuid.UUID]models.Profile)}
}

func (f *fakeSecondary) WithTx(*gorm.DB) SecondaryRepository { return f }

func (f *fakeSecondary) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	copied := profile
	return &copied, nil
}

func (f *fakeSecondary) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	for _, profile := range f.rows {
		if profile.Email == email {
			copied := profile
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSecondary) Upsert(ctx context.Context, profile *models.Profile) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertCnt++
	if existing, ok := f.rows[profile.UserID]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	f.rows[profile.UserID] = *profile
	return nil
}
