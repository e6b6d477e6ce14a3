package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/pkg/enums"
)

// Subscription persists processor subscription state per practitioner.
// Status is driven exclusively by inbound webhook events: dashboard actions
// call the processor, which echoes the change back as an event.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PractitionerID         uuid.UUID                `gorm:"column:practitioner_id;type:uuid;not null;index"`
	ExternalSubscriptionID string                   `gorm:"column:external_subscription_id;not null;unique"`
	ExternalCustomerID     string                   `gorm:"column:external_customer_id"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'incomplete'"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt             *time.Time               `gorm:"column:canceled_at"`
	Metadata               json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
