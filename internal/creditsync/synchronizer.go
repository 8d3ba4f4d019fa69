package creditsync

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/pkg/db/models"
	pkgerrors "github.com/stagelyhq/stagely-backend/pkg/errors"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
	"github.com/stagelyhq/stagely-backend/pkg/metrics"
)

const defaultBatchSize = 200

// SynchronizerParams wires the credit synchronizer dependencies.
type SynchronizerParams struct {
	Logger    *logger.Logger
	Primary   entitlements.PrimaryRepository
	Secondary entitlements.SecondaryRepository
	Engine    *entitlements.Engine
	Metrics   *metrics.BillingMetrics
	BatchSize int
}

// Synchronizer detects and repairs drift between the two entitlement tables.
// The primary row always wins; a missing primary row is seeded from the legacy
// profile so older accounts are not stranded.
type Synchronizer struct {
	logg      *logger.Logger
	primary   entitlements.PrimaryRepository
	secondary entitlements.SecondaryRepository
	engine    *entitlements.Engine
	metrics   *metrics.BillingMetrics
	batchSize int
}

// Result reports what a sync pass touched.
type Result struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Created  int `json:"created"`
	Expired  int `json:"expired"`
}

func NewSynchronizer(params SynchronizerParams) (*Synchronizer, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Primary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "primary repository required")
	}
	if params.Secondary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "secondary repository required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement engine required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Synchronizer{
		logg:      params.Logger,
		primary:   params.Primary,
		secondary: params.Secondary,
		engine:    params.Engine,
		metrics:   params.Metrics,
		batchSize: batch,
	}, nil
}

// SyncUser reconciles a single user across both tables.
func (s *Synchronizer) SyncUser(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	result := &Result{}
	ent, err := s.primary.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entitlement")
	}

	if ent == nil {
		created, err := s.seedFromLegacy(ctx, userID)
		if err != nil {
			return nil, err
		}
		if created {
			result.Scanned = 1
			result.Created = 1
		}
		s.report(ctx, result)
		return result, nil
	}

	result.Scanned = 1
	if err := s.reconcileRow(ctx, ent, result); err != nil {
		return nil, err
	}
	s.report(ctx, result)
	return result, nil
}

// SyncAll walks the primary table in user-id order and reconciles every row.
// Per-row failures are collected so one bad row does not stall the sweep.
func (s *Synchronizer) SyncAll(ctx context.Context) (*Result, error) {
	result := &Result{}
	var errs error

	after := uuid.Nil
	for {
		batch, err := s.primary.List(ctx, after, s.batchSize)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list entitlements")
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			result.Scanned++
			if err := s.reconcileRow(ctx, &batch[i], result); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		after = batch[len(batch)-1].UserID
		if len(batch) < s.batchSize {
			break
		}
	}

	s.report(ctx, result)
	return result, errs
}

func (s *Synchronizer) reconcileRow(ctx context.Context, ent *models.Entitlement, result *Result) error {
	logCtx := s.logg.WithUserID(ctx, ent.UserID.String())

	expired, err := s.engine.ApplyExpiryIfDue(logCtx, ent)
	if err != nil {
		return err
	}
	if expired {
		// The expiry transition already mirrored both tables.
		result.Expired++
		return nil
	}

	profile, err := s.secondary.FindByUserID(logCtx, ent.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}

	if profile == nil {
		if err := s.secondary.Upsert(logCtx, profileFrom(ent)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create missing profile")
		}
		result.Repaired++
		result.Created++
		s.logg.Info(logCtx, "missing legacy profile created from entitlement")
		return nil
	}

	if profilesMatch(ent, profile) {
		return nil
	}

	repaired := profileFrom(ent)
	repaired.ID = profile.ID
	repaired.CreatedAt = profile.CreatedAt
	if err := s.secondary.Upsert(logCtx, repaired); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "repair profile drift")
	}
	result.Repaired++
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"plan_type": ent.PlanType.String(),
		"limit":     ent.PhotosLimit,
	}), "legacy profile drift repaired from primary")
	return nil
}

// seedFromLegacy creates the primary row for accounts that only exist in the
// profiles table. Usage starts at zero since the legacy table never tracked it.
func (s *Synchronizer) seedFromLegacy(ctx context.Context, userID uuid.UUID) (bool, error) {
	profile, err := s.secondary.FindByUserID(ctx, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if profile == nil {
		return false, nil
	}

	ent := &models.Entitlement{
		UserID:             profile.UserID,
		Email:              profile.Email,
		PlanType:           profile.PlanType,
		PhotosLimit:        profile.PhotosLimit,
		PhotosUsed:         0,
		SubscriptionStatus: profile.SubscriptionStatus,
	}
	if err := s.primary.Create(ctx, ent); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed entitlement from profile")
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "entitlement seeded from legacy profile")
	return true, nil
}

func (s *Synchronizer) report(ctx context.Context, result *Result) {
	s.metrics.AddSyncScanned(result.Scanned)
	s.metrics.AddSyncRepairs(result.Repaired)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"scanned":  result.Scanned,
		"repaired": result.Repaired,
		"created":  result.Created,
		"expired":  result.Expired,
	})
	s.logg.Info(logCtx, "credit sync pass complete")
}

func profileFrom(ent *models.Entitlement) *models.Profile {
	return &models.Profile{
		UserID:             ent.UserID,
		Email:              ent.Email,
		PlanType:           ent.PlanType,
		PhotosLimit:        ent.PhotosLimit,
		SubscriptionStatus: ent.SubscriptionStatus,
	}
}

func profilesMatch(ent *models.Entitlement, profile *models.Profile) bool {
	return profile.Email == ent.Email &&
		profile.PlanType == ent.PlanType &&
		profile.PhotosLimit == ent.PhotosLimit &&
		profile.SubscriptionStatus == ent.SubscriptionStatus
}
