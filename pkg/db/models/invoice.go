package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/pkg/enums"
)

// Invoice persists one processor billing document tied to a subscription.
// Amounts are integer cents. Once paid the status never regresses.
type Invoice struct {
	ID                uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID    uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	ExternalInvoiceID string              `gorm:"column:external_invoice_id;not null;unique"`
	Status            enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'draft'"`
	AmountDueCents    int64               `gorm:"column:amount_due_cents;not null;default:0"`
	AmountPaidCents   int64               `gorm:"column:amount_paid_cents;not null;default:0"`
	DueDate           *time.Time          `gorm:"column:due_date"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
