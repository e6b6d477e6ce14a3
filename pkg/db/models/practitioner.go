package models

import (
	"time"

	"github.com/google/uuid"
)

// Practitioner is the tenant of the platform: the health professional whose
// practice is billed through the payment processor.
type Practitioner struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email       string    `gorm:"column:email;not null;unique"`
	DisplayName string    `gorm:"column:display_name;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
