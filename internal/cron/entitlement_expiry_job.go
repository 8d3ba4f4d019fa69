package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/stagelyhq/stagely-backend/internal/entitlements"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

const defaultExpiryLimit = 200

// EntitlementExpiryJobParams configures the expiry sweep.
type EntitlementExpiryJobParams struct {
	Logger  *logger.Logger
	Primary entitlements.PrimaryRepository
	Engine  *entitlements.Engine
	Limit   int
	Now     func() time.Time
}

// NewEntitlementExpiryJob builds the job that demotes canceled subscriptions
// whose paid period has run out. Reads also apply this transition lazily; the
// sweep catches users who never come back.
func NewEntitlementExpiryJob(params EntitlementExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Primary == nil {
		return nil, fmt.Errorf("primary repository required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("entitlement engine required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultExpiryLimit
	}
	return &entitlementExpiryJob{
		logg:    params.Logger,
		primary: params.Primary,
		engine:  params.Engine,
		limit:   limit,
		now:     now,
	}, nil
}

type entitlementExpiryJob struct {
	logg    *logger.Logger
	primary entitlements.PrimaryRepository
	engine  *entitlements.Engine
	limit   int
	now     func() time.Time
}

func (j *entitlementExpiryJob) Name() string { return "entitlement-expiry" }

func (j *entitlementExpiryJob) Run(ctx context.Context) error {
	due, err := j.primary.ListExpired(ctx, j.now().UTC(), j.limit)
	if err != nil {
		return fmt.Errorf("list expired entitlements: %w", err)
	}

	var errs error
	expired := 0
	for i := range due {
		transitioned, err := j.engine.ApplyExpiryIfDue(ctx, &due[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if transitioned {
			expired++
		}
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"expired":    expired,
	})
	j.logg.Info(reportCtx, "entitlement expiry sweep finished")
	return errs
}
