package paymentswebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/pagination"
)

// Repository handles event ledger persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.WebhookEvent) error
	FindByExternalID(ctx context.Context, externalEventID string) (*models.WebhookEvent, error)
	UpdateOutcome(ctx context.Context, externalEventID string, processed bool, processingError *string, processedAt time.Time) error
	DeleteByExternalID(ctx context.Context, externalEventID string) error
	List(ctx context.Context, params ListEventsQuery) ([]models.WebhookEvent, *pagination.Cursor, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ListEventsQuery configures ledger list queries for the ops surface.
type ListEventsQuery struct {
	EventType string
	Failed    bool
	Limit     int
	Cursor    *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, entry *models.WebhookEvent) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByExternalID(ctx context.Context, externalEventID string) (*models.WebhookEvent, error) {
	var entry models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("external_event_id = ?", externalEventID).
		First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) UpdateOutcome(ctx context.Context, externalEventID string, processed bool, processingError *string, processedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("external_event_id = ?", externalEventID).
		Updates(map[string]any{
			"processed":    processed,
			"error":        processingError,
			"processed_at": processedAt,
		}).Error
}

func (r *repository) DeleteByExternalID(ctx context.Context, externalEventID string) error {
	return r.db.WithContext(ctx).
		Where("external_event_id = ?", externalEventID).
		Delete(&models.WebhookEvent{}).Error
}

func (r *repository) List(ctx context.Context, params ListEventsQuery) ([]models.WebhookEvent, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if params.EventType != "" {
		query = query.Where("event_type = ?", params.EventType)
	}
	if params.Failed {
		query = query.Where("error IS NOT NULL")
	}
	if params.Cursor != nil {
		query = query.Where(
			"(received_at < ?) OR (received_at = ? AND id < ?)",
			params.Cursor.At, params.Cursor.At, params.Cursor.ID,
		)
	}

	var entries []models.WebhookEvent
	if err := query.
		Order("received_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) <= limit {
		return entries, nil, nil
	}
	entries = entries[:limit]
	last := entries[len(entries)-1]
	return entries, &pagination.Cursor{At: last.ReceivedAt, ID: last.ID}, nil
}

func (r *repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed = ? AND received_at < ?", true, cutoff).
		Delete(&models.WebhookEvent{})
	return result.RowsAffected, result.Error
}
