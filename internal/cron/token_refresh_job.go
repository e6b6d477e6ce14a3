package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/practivahq/practiva-backend/internal/calendarsync"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

const (
	defaultRefreshWindow    = time.Hour
	defaultRefreshBatchSize = 100
)

type tokenRefreshService interface {
	RefreshExpiring(ctx context.Context, window time.Duration, limit int) (*calendarsync.RefreshResult, error)
}

type TokenRefreshJobParams struct {
	Logger    *logger.Logger
	Service   tokenRefreshService
	Window    time.Duration
	BatchSize int
}

// NewTokenRefreshJob builds the job that sweeps calendar accounts whose
// access tokens expire soon.
func NewTokenRefreshJob(params TokenRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("calendar sync service required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultRefreshWindow
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRefreshBatchSize
	}
	return &tokenRefreshJob{
		logg:      params.Logger,
		service:   params.Service,
		window:    window,
		batchSize: batchSize,
	}, nil
}

type tokenRefreshJob struct {
	logg      *logger.Logger
	service   tokenRefreshService
	window    time.Duration
	batchSize int
}

func (j *tokenRefreshJob) Name() string { return "calendar-token-refresh" }

func (j *tokenRefreshJob) Run(ctx context.Context) error {
	result, err := j.service.RefreshExpiring(ctx, j.window, j.batchSize)
	if err != nil {
		return fmt.Errorf("refresh expiring calendar tokens: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"refreshed": result.Refreshed,
		"flagged":   result.Flagged,
		"failed":    result.Failed,
	})
	j.logg.Info(logCtx, "calendar token refresh complete")
	return nil
}
