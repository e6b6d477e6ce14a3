package paymentfailures

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/practivahq/practiva-backend/pkg/db"
	"github.com/practivahq/practiva-backend/pkg/db/models"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
)

// retryInterval is the base backoff unit: the processor is expected to retry
// the payment roughly once a day, pushed out further on every failure.
const retryInterval = 24 * time.Hour

// Tracker maintains the dunning bookkeeping for failing invoice payments. It
// never initiates payment retries itself; the escalation job and the ops
// surface consult the rows it keeps.
type Tracker struct {
	repo Repository
	now  func() time.Time
}

func NewTracker(repo Repository) (*Tracker, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment failure repository required")
	}
	return &Tracker{repo: repo, now: time.Now}, nil
}

// NextRetryAt computes the backoff deadline for a given retry count. The
// curve is linear in retryCount, which keeps it monotonically increasing.
func NextRetryAt(from time.Time, retryCount int) time.Time {
	if retryCount < 1 {
		retryCount = 1
	}
	return from.Add(time.Duration(retryCount) * retryInterval)
}

// RecordFailure registers one processor-reported payment failure for the
// subscription. An existing unresolved record is incremented in place; at
// most one unresolved record exists per subscription, enforced by a partial
// unique index, so a concurrent create loses the race and increments instead.
func (t *Tracker) RecordFailure(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.PaymentFailure, error) {
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	repo := t.repo.WithTx(tx)
	now := t.now().UTC()

	existing, err := repo.FindUnresolvedBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment failure")
	}
	if existing != nil {
		existing.RetryCount++
		existing.NextRetryAt = NextRetryAt(now, existing.RetryCount)
		if err := repo.Update(ctx, existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment payment failure")
		}
		return existing, nil
	}

	failure := &models.PaymentFailure{
		SubscriptionID: subscriptionID,
		RetryCount:     1,
		NextRetryAt:    NextRetryAt(now, 1),
	}
	if err := repo.Create(ctx, failure); err != nil {
		if db.IsUniqueViolation(err, models.PaymentFailureActiveConstraint) {
			return t.incrementAfterRace(ctx, repo, subscriptionID, now)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment failure")
	}
	return failure, nil
}

func (t *Tracker) incrementAfterRace(ctx context.Context, repo Repository, subscriptionID uuid.UUID, now time.Time) (*models.PaymentFailure, error) {
	existing, err := repo.FindUnresolvedBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment failure")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment failure vanished after conflict")
	}
	existing.RetryCount++
	existing.NextRetryAt = NextRetryAt(now, existing.RetryCount)
	if err := repo.Update(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment payment failure")
	}
	return existing, nil
}

// Resolve closes the unresolved record for the subscription, if one exists,
// and reports whether one was actually closed. Resolving with no open record
// is a no-op so payment-succeeded events stay idempotent and
// order-independent.
func (t *Tracker) Resolve(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (bool, error) {
	if subscriptionID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	resolved, err := t.repo.WithTx(tx).Resolve(ctx, subscriptionID, t.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment failure")
	}
	return resolved > 0, nil
}
