package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/enums"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

const defaultEscalationBatchSize = 250

type escalationFailureRepo interface {
	ListDueForEscalation(ctx context.Context, dueBefore time.Time, limit int) ([]models.PaymentFailure, error)
	MarkEscalated(ctx context.Context, id uuid.UUID, escalatedCount int) error
}

type escalationSubscriptionRepo interface {
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

type escalationNotifier interface {
	Notify(ctx context.Context, practitionerID uuid.UUID, kind enums.NotificationType, title, message string)
}

type PaymentEscalationJobParams struct {
	Logger        *logger.Logger
	Failures      escalationFailureRepo
	Subscriptions escalationSubscriptionRepo
	Notifier      escalationNotifier
	BatchSize     int
}

// NewPaymentEscalationJob builds the dunning job. It reminds practitioners
// whose subscription payments keep failing, once per failed attempt: a row
// is picked up only while its retry count is ahead of the count it was last
// escalated at, so overlapping cycles cannot double-send.
func NewPaymentEscalationJob(params PaymentEscalationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Failures == nil {
		return nil, fmt.Errorf("payment failure repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEscalationBatchSize
	}
	return &paymentEscalationJob{
		logg:          params.Logger,
		failures:      params.Failures,
		subscriptions: params.Subscriptions,
		notifier:      params.Notifier,
		batchSize:     batchSize,
		now:           time.Now,
	}, nil
}

type paymentEscalationJob struct {
	logg          *logger.Logger
	failures      escalationFailureRepo
	subscriptions escalationSubscriptionRepo
	notifier      escalationNotifier
	batchSize     int
	now           func() time.Time
}

func (j *paymentEscalationJob) Name() string { return "payment-escalation" }

func (j *paymentEscalationJob) Run(ctx context.Context) error {
	due, err := j.failures.ListDueForEscalation(ctx, j.now().UTC(), j.batchSize)
	if err != nil {
		return fmt.Errorf("list due payment failures: %w", err)
	}

	var runErr error
	notified := 0
	for _, failure := range due {
		subscription, err := j.subscriptions.FindSubscriptionByID(ctx, failure.SubscriptionID)
		if err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("load subscription %s: %w", failure.SubscriptionID, err))
			continue
		}
		if subscription != nil {
			j.notifier.Notify(ctx, subscription.PractitionerID, enums.NotificationTypeDunningReminder,
				"Payment still failing",
				fmt.Sprintf("We could not collect your subscription payment (attempt %d). Please update your payment method.", failure.RetryCount))
			notified++
		} else {
			// Subscription row is gone; mark anyway so the orphan stops
			// reappearing in every batch.
			subCtx := j.logg.WithField(ctx, "subscription_id", failure.SubscriptionID.String())
			j.logg.Warn(subCtx, "payment failure references missing subscription")
		}
		if err := j.failures.MarkEscalated(ctx, failure.ID, failure.RetryCount); err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("mark payment failure %s escalated: %w", failure.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":      len(due),
		"notified": notified,
	})
	j.logg.Info(logCtx, "payment escalation complete")
	return runErr
}
