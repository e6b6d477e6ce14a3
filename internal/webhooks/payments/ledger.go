package paymentswebhook

import (
	"context"
	"time"

	"github.com/practivahq/practiva-backend/pkg/db"
	"github.com/practivahq/practiva-backend/pkg/db/models"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
)

// Ledger is the durable record of every distinct event the engine has seen.
// The insert carries a unique index on external_event_id, so a concurrent
// duplicate delivery loses the race at the storage layer and is reported as
// already seen instead of running handlers twice.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) (*Ledger, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	return &Ledger{repo: repo}, nil
}

// RecordSeen writes the ledger row at first sight of an event. It reports
// isNew=false when a row for the same externalEventID already exists, in
// which case the caller must short-circuit without re-invoking handlers.
func (l *Ledger) RecordSeen(ctx context.Context, externalEventID, eventType string) (bool, error) {
	if externalEventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "external event id is required")
	}
	if eventType == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event type is required")
	}

	entry := &models.WebhookEvent{
		ExternalEventID: externalEventID,
		EventType:       eventType,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := l.repo.Insert(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, models.WebhookEventExternalIDConstraint) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}
	return true, nil
}

// RecordOutcome writes the terminal result for an event: processed=true with
// a nil error on success, processed=true with the error text on a terminal
// handler failure.
func (l *Ledger) RecordOutcome(ctx context.Context, externalEventID string, success bool, processingError string) error {
	if externalEventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external event id is required")
	}

	var errField *string
	if !success {
		if processingError == "" {
			processingError = "handler failed"
		}
		errField = &processingError
	}
	if err := l.repo.UpdateOutcome(ctx, externalEventID, true, errField, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ledger outcome")
	}
	return nil
}

// Release removes the ledger row for an event whose handler failed a
// retryable way, so the upstream redelivery is treated as a fresh event
// instead of short-circuiting as a duplicate.
func (l *Ledger) Release(ctx context.Context, externalEventID string) error {
	if externalEventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external event id is required")
	}
	if err := l.repo.DeleteByExternalID(ctx, externalEventID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release ledger entry")
	}
	return nil
}
