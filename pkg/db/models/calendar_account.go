package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/pkg/enums"
)

// CalendarAccount links a practitioner to an external calendar. The cron
// worker refreshes access tokens before they expire; when the provider
// reports the grant as revoked the account is flagged for re-authorization
// instead of being retried forever.
type CalendarAccount struct {
	ID             uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PractitionerID uuid.UUID              `gorm:"column:practitioner_id;type:uuid;not null;index"`
	Provider       enums.CalendarProvider `gorm:"column:provider;type:calendar_provider;not null"`
	RefreshToken   string                 `gorm:"column:refresh_token;not null"`
	AccessToken    string                 `gorm:"column:access_token"`
	ExpiresAt      *time.Time             `gorm:"column:expires_at"`
	ReauthRequired bool                   `gorm:"column:reauth_required;not null;default:false"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
