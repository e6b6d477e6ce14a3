package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/practivahq/practiva-backend/pkg/logger"
)

const defaultLedgerRetention = 90 * 24 * time.Hour

type ledgerRetentionRepo interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type LedgerRetentionJobParams struct {
	Logger     *logger.Logger
	Repository ledgerRetentionRepo
	Retention  time.Duration
}

// NewLedgerRetentionJob builds the job that prunes processed webhook events
// past the retention window. Unprocessed rows are never touched; they still
// guard against redelivery.
func NewLedgerRetentionJob(params LedgerRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	return &ledgerRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type ledgerRetentionJob struct {
	logg      *logger.Logger
	repo      ledgerRetentionRepo
	retention time.Duration
	now       func() time.Time
}

func (j *ledgerRetentionJob) Name() string { return "webhook-ledger-retention" }

func (j *ledgerRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("webhook ledger retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "webhook ledger retention complete")
	return nil
}
