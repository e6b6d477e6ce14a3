package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentFailureActiveConstraint is the partial unique index that keeps a
// subscription down to one unresolved failure row (see the
// create_payment_failures migration).
const PaymentFailureActiveConstraint = "uq_payment_failures_active"

// PaymentFailure tracks the dunning state of a subscription whose invoice
// payments are failing. At most one unresolved row exists per subscription;
// repeated failures increment the existing row. LastEscalatedCount records
// the retry count the escalation job last notified at, so an overlapping or
// replayed tick cannot duplicate dunning notices.
type PaymentFailure struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID     uuid.UUID  `gorm:"column:subscription_id;type:uuid;not null;index"`
	RetryCount         int        `gorm:"column:retry_count;not null;default:1"`
	NextRetryAt        time.Time  `gorm:"column:next_retry_at;not null"`
	LastEscalatedCount int        `gorm:"column:last_escalated_count;not null;default:0"`
	ResolvedAt         *time.Time `gorm:"column:resolved_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
