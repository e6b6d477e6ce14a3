package paymentfailures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/practivahq/practiva-backend/pkg/db"
	"github.com/practivahq/practiva-backend/pkg/db/models"
)

func setupFailuresTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payment_failures (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 1,
  next_retry_at DATETIME NOT NULL,
  last_escalated_count INTEGER NOT NULL DEFAULT 0,
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_payment_failures_active
  ON payment_failures (subscription_id)
  WHERE resolved_at IS NULL;`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func TestRepositoryEnforcesSingleUnresolvedRow(t *testing.T) {
	repo := NewRepository(setupFailuresTestDB(t))
	ctx := context.Background()
	subID := uuid.New()

	first := &models.PaymentFailure{
		SubscriptionID: subID,
		RetryCount:     1,
		NextRetryAt:    time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, first))

	dup := &models.PaymentFailure{
		SubscriptionID: subID,
		RetryCount:     1,
		NextRetryAt:    time.Now().UTC().Add(24 * time.Hour),
	}
	err := repo.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, models.PaymentFailureActiveConstraint))

	// Once resolved, a fresh unresolved row is allowed again.
	resolved, err := repo.Resolve(ctx, subID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), resolved)
	require.NoError(t, repo.Create(ctx, dup))
}

func TestRepositoryFindUnresolvedIgnoresResolvedRows(t *testing.T) {
	repo := NewRepository(setupFailuresTestDB(t))
	ctx := context.Background()
	subID := uuid.New()

	failure := &models.PaymentFailure{
		SubscriptionID: subID,
		RetryCount:     1,
		NextRetryAt:    time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, failure))
	_, err := repo.Resolve(ctx, subID, time.Now().UTC())
	require.NoError(t, err)

	found, err := repo.FindUnresolvedBySubscription(ctx, subID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepositoryListDueForEscalation(t *testing.T) {
	repo := NewRepository(setupFailuresTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	due := &models.PaymentFailure{
		SubscriptionID: uuid.New(),
		RetryCount:     2,
		NextRetryAt:    now.Add(-time.Hour),
	}
	require.NoError(t, repo.Create(ctx, due))

	notYetDue := &models.PaymentFailure{
		SubscriptionID: uuid.New(),
		RetryCount:     1,
		NextRetryAt:    now.Add(48 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, notYetDue))

	alreadyEscalated := &models.PaymentFailure{
		SubscriptionID:     uuid.New(),
		RetryCount:         2,
		NextRetryAt:        now.Add(-time.Hour),
		LastEscalatedCount: 2,
	}
	require.NoError(t, repo.Create(ctx, alreadyEscalated))

	failures, err := repo.ListDueForEscalation(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, due.ID, failures[0].ID)
}

func TestRepositoryMarkEscalated(t *testing.T) {
	repo := NewRepository(setupFailuresTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	failure := &models.PaymentFailure{
		SubscriptionID: uuid.New(),
		RetryCount:     3,
		NextRetryAt:    now.Add(-time.Hour),
	}
	require.NoError(t, repo.Create(ctx, failure))
	require.NoError(t, repo.MarkEscalated(ctx, failure.ID, 3))

	// Escalating the same retry count twice yields no further due rows.
	failures, err := repo.ListDueForEscalation(ctx, now, 50)
	require.NoError(t, err)
	assert.Empty(t, failures)
}
