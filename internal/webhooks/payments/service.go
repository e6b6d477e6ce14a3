package paymentswebhook

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/metrics"
)

// Status is the pipeline-level outcome of one delivery, driving the HTTP
// response: processed and duplicate answer 200, terminal answers 200 with an
// error field, retryable answers 5xx so the sender redelivers.
type Status int

const (
	StatusProcessed Status = iota
	StatusDuplicate
	StatusTerminal
	StatusRetryable
)

// ProcessResult pairs the pipeline status with the classified handler error,
// when one occurred.
type ProcessResult struct {
	Status Status
	Err    error
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Verifier   *Verifier
	Ledger     *Ledger
	Dispatcher *Dispatcher
	Guard      idempotencyGuard
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
}

// Service runs the full pipeline for one inbound delivery: verify, dedup,
// dispatch, record outcome.
type Service struct {
	verifier   *Verifier
	ledger     *Ledger
	dispatcher *Dispatcher
	guard      idempotencyGuard
	metrics    *metrics.WebhookMetrics
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "verifier required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		verifier:   params.Verifier,
		ledger:     params.Ledger,
		dispatcher: params.Dispatcher,
		guard:      params.Guard,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// Process verifies the raw delivery, short-circuits duplicates, dispatches to
// the registered handler, and records the terminal outcome in the ledger. A
// verification failure is returned as an error with no ledger write; every
// verified delivery yields a ProcessResult.
func (s *Service) Process(ctx context.Context, rawBody []byte, signatureHeader string) (*ProcessResult, error) {
	start := time.Now()

	event, err := s.verifier.Verify(rawBody, signatureHeader)
	if err != nil {
		s.metrics.IncOutcome("", metrics.WebhookOutcomeRejected)
		return nil, err
	}

	ctx = s.logg.WithEventID(ctx, event.ID)
	ctx = s.logg.WithEventType(ctx, event.Type)
	defer func() {
		s.metrics.ObserveDuration(event.Type, time.Since(start))
	}()

	// Redis fast path. A guard outage must not take the webhook endpoint
	// down with it; the ledger's unique index still dedups.
	seen, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("idempotency guard unavailable, falling through to ledger: %v", err))
	} else if seen {
		s.logg.Info(ctx, "duplicate delivery, short-circuiting")
		s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeDuplicate)
		return &ProcessResult{Status: StatusDuplicate}, nil
	}

	isNew, err := s.ledger.RecordSeen(ctx, event.ID, event.Type)
	if err != nil {
		_ = s.guard.Delete(ctx, event.ID)
		s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeRetryable)
		return &ProcessResult{Status: StatusRetryable, Err: err}, nil
	}
	if !isNew {
		s.logg.Info(ctx, "event already in ledger, short-circuiting")
		s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeDuplicate)
		return &ProcessResult{Status: StatusDuplicate}, nil
	}

	result := s.dispatcher.Dispatch(ctx, event)
	switch {
	case result.Success:
		if err := s.ledger.RecordOutcome(ctx, event.ID, true, ""); err != nil {
			// Handlers already ran and are idempotent; release so the
			// redelivery converges and writes the outcome.
			s.release(ctx, event.ID)
			s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeRetryable)
			return &ProcessResult{Status: StatusRetryable, Err: err}, nil
		}
		s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeProcessed)
		return &ProcessResult{Status: StatusProcessed}, nil

	case result.Retryable:
		s.release(ctx, event.ID)
		s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeRetryable)
		return &ProcessResult{Status: StatusRetryable, Err: result.Err}, nil

	default:
		if err := s.ledger.RecordOutcome(ctx, event.ID, false, result.Err.Error()); err != nil {
			s.release(ctx, event.ID)
			s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeRetryable)
			return &ProcessResult{Status: StatusRetryable, Err: err}, nil
		}
		s.metrics.IncOutcome(event.Type, metrics.WebhookOutcomeTerminal)
		return &ProcessResult{Status: StatusTerminal, Err: result.Err}, nil
	}
}

func (s *Service) release(ctx context.Context, eventID string) {
	if err := s.ledger.Release(ctx, eventID); err != nil {
		s.logg.Error(ctx, "release ledger entry", err)
	}
	if err := s.guard.Delete(ctx, eventID); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("release idempotency key: %v", err))
	}
}
