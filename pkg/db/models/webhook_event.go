package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventExternalIDConstraint is the unique index backing the ledger's
// insert-race dedup (see the create_webhook_events migration).
const WebhookEventExternalIDConstraint = "uq_webhook_events_external_event_id"

// WebhookEvent is the durable ledger row for one distinct processor event.
// ExternalEventID carries a unique index: a concurrent duplicate delivery
// loses the insert race and is treated as already seen. The row is written
// once at first sight and updated exactly once with the terminal outcome.
type WebhookEvent struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalEventID string     `gorm:"column:external_event_id;not null;unique"`
	EventType       string     `gorm:"column:event_type;not null"`
	Processed       bool       `gorm:"column:processed;not null;default:false"`
	Error           *string    `gorm:"column:error"`
	ReceivedAt      time.Time  `gorm:"column:received_at;not null"`
	ProcessedAt     *time.Time `gorm:"column:processed_at"`
}
