package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagelyhq/stagely-backend/pkg/enums"
)

// Profile is the legacy secondary entitlement record kept for older dashboard
// readers. It carries its own surrogate id; joins go through UserID or Email,
// never ID. It does not track photo usage.
type Profile struct {
	ID                 uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID             uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Email              string                   `gorm:"type:text;not null;index"`
	PlanType           enums.PlanType           `gorm:"column:plan_type;type:text;not null;default:'free'"`
	PhotosLimit        int                      `gorm:"column:photos_limit;not null;default:0"`
	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;type:text;not null;default:'inactive'"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the surrogate id client-side so sqlite-backed tests
// behave like postgres.
func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
