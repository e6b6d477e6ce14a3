package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to practitioners.
type Notification struct {
	ID             uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PractitionerID uuid.UUID              `gorm:"type:uuid;not null;index"`
	Type           enums.NotificationType `gorm:"type:notification_type;not null"`
	Title          string                 `gorm:"type:text;not null"`
	Message        string                 `gorm:"type:text;not null"`
	ReadAt         *time.Time             `gorm:"type:timestamptz"`
	CreatedAt      time.Time              `gorm:"type:timestamptz;default:now()"`
}
