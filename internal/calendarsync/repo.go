package calendarsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/practivahq/practiva-backend/pkg/db/models"
)

// Repository handles calendar account persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListExpiringAccounts(ctx context.Context, expiringBefore time.Time, limit int) ([]models.CalendarAccount, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	MarkReauthRequired(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a calendar account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListExpiringAccounts(ctx context.Context, expiringBefore time.Time, limit int) ([]models.CalendarAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	var accounts []models.CalendarAccount
	if err := r.db.WithContext(ctx).
		Where("reauth_required = ? AND (expires_at IS NULL OR expires_at <= ?)", false, expiringBefore).
		Order("expires_at ASC").
		Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CalendarAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
		}).Error
}

func (r *repository) MarkReauthRequired(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CalendarAccount{}).
		Where("id = ?", id).
		Update("reauth_required", true).Error
}
