package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/pkg/enums"
)

// Entitlement is the authoritative per-user credit record. One row per user.
type Entitlement struct {
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;primaryKey"`
	Email                string                   `gorm:"type:text;not null;index"`
	PlanType             enums.PlanType           `gorm:"column:plan_type;type:text;not null;default:'free'"`
	PhotosLimit          int                      `gorm:"column:photos_limit;not null;default:0"`
	PhotosUsed           int                      `gorm:"column:photos_used;not null;default:0"`
	SubscriptionStatus   enums.SubscriptionStatus `gorm:"column:subscription_status;type:text;not null;default:'inactive'"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id;index"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id"`
	PendingPlanType      *enums.PlanType          `gorm:"column:pending_plan_type;type:text"`
	PendingPhotosLimit   *int                     `gorm:"column:pending_photos_limit"`
	CancellationDate     *time.Time               `gorm:"column:cancellation_date"`
	SubscriptionEndDate  *time.Time               `gorm:"column:subscription_end_date"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the gorm pluralization.
func (Entitlement) TableName() string { return "user_entitlements" }

// CreditsRemaining is derived, never stored.
func (e *Entitlement) CreditsRemaining() int {
	remaining := e.PhotosLimit - e.PhotosUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasPendingDowngrade reports whether a limit reduction is deferred to renewal.
func (e *Entitlement) HasPendingDowngrade() bool {
	return e.PendingPlanType != nil || e.PendingPhotosLimit != nil
}
