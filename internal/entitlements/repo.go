package entitlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
)

// PrimaryRepository handles the authoritative user_entitlements table.
type PrimaryRepository interface {
	WithTx(tx *gorm.DB) PrimaryRepository
	Create(ctx context.Context, ent *models.Entitlement) error
	Update(ctx context.Context, ent *models.Entitlement) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error)
	FindByEmail(ctx context.Context, email string) (*models.Entitlement, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Entitlement, error)
	List(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.Entitlement, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Entitlement, error)
	ConsumeCredit(ctx context.Context, userID uuid.UUID) (bool, error)
}

// SecondaryRepository handles the legacy profiles table.
type SecondaryRepository interface {
	WithTx(tx *gorm.DB) SecondaryRepository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
}

type primaryRepository struct {
	db *gorm.DB
}

// NewPrimaryRepository returns a repository bound to the provided database.
func NewPrimaryRepository(db *gorm.DB) PrimaryRepository {
	return &primaryRepository{db: db}
}

func (r *primaryRepository) WithTx(tx *gorm.DB) PrimaryRepository {
	if tx == nil {
		return r
	}
	return &primaryRepository{db: tx}
}

func (r *primaryRepository) Create(ctx context.Context, ent *models.Entitlement) error {
	return r.db.WithContext(ctx).Create(ent).Error
}

func (r *primaryRepository) Update(ctx context.Context, ent *models.Entitlement) error {
	return r.db.WithContext(ctx).Save(ent).Error
}

func (r *primaryRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error) {
	var ent models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&ent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

func (r *primaryRepository) FindByEmail(ctx context.Context, email string) (*models.Entitlement, error) {
	if email == "" {
		return nil, nil
	}
	var ent models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&ent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

func (r *primaryRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Entitlement, error) {
	if customerID == "" {
		return nil, nil
	}
	var ent models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&ent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

func (r *primaryRepository) List(ctx context.Context, afterUserID uuid.UUID, limit int) ([]models.Entitlement, error) {
	if limit <= 0 {
		limit = 200
	}
	query := r.db.WithContext(ctx).Model(&models.Entitlement{})
	if afterUserID != uuid.Nil {
		query = query.Where("user_id > ?", afterUserID)
	}
	var ents []models.Entitlement
	if err := query.Order("user_id ASC").Limit(limit).Find(&ents).Error; err != nil {
		return nil, err
	}
	return ents, nil
}

func (r *primaryRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Entitlement, error) {
	if limit <= 0 {
		limit = 200
	}
	var ents []models.Entitlement
	if err := r.db.WithContext(ctx).
		Where("subscription_status = ?", enums.SubscriptionStatusCanceled).
		Where("subscription_end_date IS NOT NULL AND subscription_end_date <= ?", now).
		Order("subscription_end_date ASC").
		Limit(limit).
		Find(&ents).Error; err != nil {
		return nil, err
	}
	return ents, nil
}

// ConsumeCredit increments photos_used atomically, guarded by the limit. The
// single UPDATE serializes usage against concurrent plan transitions at the
// row level. Returns false when no credit was available.
func (r *primaryRepository) ConsumeCredit(ctx context.Context, userID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND photos_used < photos_limit", userID).
		UpdateColumn("photos_used", gorm.Expr("photos_used + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type secondaryRepository struct {
	db *gorm.DB
}

// NewSecondaryRepository returns a repository bound to the provided database.
func NewSecondaryRepository(db *gorm.DB) SecondaryRepository {
	return &secondaryRepository{db: db}
}

func (r *secondaryRepository) WithTx(tx *gorm.DB) SecondaryRepository {
	if tx == nil {
		return r
	}
	return &secondaryRepository{db: tx}
}

func (r *secondaryRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *secondaryRepository) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	if email == "" {
		return nil, nil
	}
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// Upsert writes the profile keyed by user_id, preserving the legacy surrogate id.
func (r *secondaryRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	existing, err := r.FindByUserID(ctx, profile.UserID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(profile).Error
	}
	profile.ID = existing.ID
	profile.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(profile).Error
}
