package entitlements

import (
	"context"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// Store is the single write path over both entitlement tables. The primary
// user_entitlements row is authoritative; the legacy profiles row is mirrored
// best-effort and repaired later by the credit synchronizer when a mirror
// write is lost.
type Store struct {
	logg      *logger.Logger
	primary   PrimaryRepository
	secondary SecondaryRepository
}

// StoreParams wires the store dependencies.
type StoreParams struct {
	Logger    *logger.Logger
	Primary   PrimaryRepository
	Secondary SecondaryRepository
}

// NewStore validates dependencies and builds the store adapter.
func NewStore(params StoreParams) (*Store, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	if params.Primary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "primary repository is required")
	}
	if params.Secondary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "secondary repository is required")
	}
	return &Store{
		logg:      params.Logger,
		primary:   params.Primary,
		secondary: params.Secondary,
	}, nil
}

// Load returns the authoritative entitlement row, nil when absent.
func (s *Store) Load(ctx context.Context, userID uuid.UUID) (*models.Entitlement, error) {
	ent, err := s.primary.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entitlement")
	}
	return ent, nil
}

// Upsert persists the entitlement to both stores. A primary failure is
// returned to the caller; a secondary failure is logged and swallowed so a
// degraded legacy table never blocks the authoritative write.
func (s *Store) Upsert(ctx context.Context, ent *models.Entitlement) error {
	if ent == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "entitlement is required")
	}

	existing, err := s.primary.FindByUserID(ctx, ent.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find entitlement")
	}
	if existing == nil {
		if err := s.primary.Create(ctx, ent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create entitlement")
		}
	} else {
		ent.CreatedAt = existing.CreatedAt
		if err := s.primary.Update(ctx, ent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update entitlement")
		}
	}

	s.mirror(ctx, ent)
	return nil
}

func (s *Store) mirror(ctx context.Context, ent *models.Entitlement) {
	profile := &models.Profile{
		UserID:             ent.UserID,
		Email:              ent.Email,
		PlanType:           ent.PlanType,
		PhotosLimit:        ent.PhotosLimit,
		SubscriptionStatus: ent.SubscriptionStatus,
	}
	if err := s.secondary.Upsert(ctx, profile); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id": ent.UserID.String(),
			"table":   "profiles",
		})
		s.logg.Error(logCtx, "secondary entitlement write failed; sync pass will repair", err)
	}
}
