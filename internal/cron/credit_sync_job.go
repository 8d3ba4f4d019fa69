package cron

import (
	"context"
	"fmt"

	"github.com/stagelyhq/stagely-backend/internal/creditsync"
	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

// CreditSyncJobParams configures the scheduled reconciliation sweep.
type CreditSyncJobParams struct {
	Logger       *logger.Logger
	Synchronizer *creditsync.Synchronizer
}

// NewCreditSyncJob builds the credit sync cron job.
func NewCreditSyncJob(params CreditSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Synchronizer == nil {
		return nil, fmt.Errorf("synchronizer required")
	}
	return &creditSyncJob{
		logg: params.Logger,
		sync: params.Synchronizer,
	}, nil
}

type creditSyncJob struct {
	logg *logger.Logger
	sync *creditsync.Synchronizer
}

func (j *creditSyncJob) Name() string { return "credit-sync" }

func (j *creditSyncJob) Run(ctx context.Context) error {
	result, err := j.sync.SyncAll(ctx)
	if result != nil {
		reportCtx := j.logg.WithFields(ctx, map[string]any{
			"scanned":  result.Scanned,
			"repaired": result.Repaired,
			"created":  result.Created,
			"expired":  result.Expired,
		})
		j.logg.Info(reportCtx, "credit sync sweep finished")
	}
	if err != nil {
		return fmt.Errorf("credit sync sweep: %w", err)
	}
	return nil
}
