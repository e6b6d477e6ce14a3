package paymentfailures

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/pagination"
)

// Repository handles payment failure persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, failure *models.PaymentFailure) error
	Update(ctx context.Context, failure *models.PaymentFailure) error
	FindUnresolvedBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.PaymentFailure, error)
	Resolve(ctx context.Context, subscriptionID uuid.UUID, resolvedAt time.Time) (int64, error)
	ListDueForEscalation(ctx context.Context, dueBefore time.Time, limit int) ([]models.PaymentFailure, error)
	MarkEscalated(ctx context.Context, id uuid.UUID, escalatedCount int) error
	List(ctx context.Context, params ListQuery) ([]models.PaymentFailure, *pagination.Cursor, error)
}

// ListQuery configures payment failure list queries for the ops surface.
type ListQuery struct {
	Unresolved bool
	Limit      int
	Cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment failure repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, failure *models.PaymentFailure) error {
	if failure.ID == uuid.Nil {
		failure.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(failure).Error
}

func (r *repository) Update(ctx context.Context, failure *models.PaymentFailure) error {
	return r.db.WithContext(ctx).Save(failure).Error
}

func (r *repository) FindUnresolvedBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.PaymentFailure, error) {
	var failure models.PaymentFailure
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND resolved_at IS NULL", subscriptionID).
		First(&failure).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &failure, nil
}

func (r *repository) Resolve(ctx context.Context, subscriptionID uuid.UUID, resolvedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentFailure{}).
		Where("subscription_id = ? AND resolved_at IS NULL", subscriptionID).
		Update("resolved_at", resolvedAt)
	return result.RowsAffected, result.Error
}

func (r *repository) ListDueForEscalation(ctx context.Context, dueBefore time.Time, limit int) ([]models.PaymentFailure, error) {
	if limit <= 0 {
		limit = 250
	}
	var failures []models.PaymentFailure
	if err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL AND next_retry_at <= ? AND retry_count > last_escalated_count", dueBefore).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&failures).Error; err != nil {
		return nil, err
	}
	return failures, nil
}

func (r *repository) MarkEscalated(ctx context.Context, id uuid.UUID, escalatedCount int) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentFailure{}).
		Where("id = ?", id).
		Update("last_escalated_count", escalatedCount).Error
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.PaymentFailure, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.PaymentFailure{})
	if params.Unresolved {
		query = query.Where("resolved_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.At, params.Cursor.At, params.Cursor.ID,
		)
	}

	var failures []models.PaymentFailure
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&failures).Error; err != nil {
		return nil, nil, err
	}

	if len(failures) <= limit {
		return failures, nil, nil
	}
	failures = failures[:limit]
	last := failures[len(failures)-1]
	return failures, &pagination.Cursor{At: last.CreatedAt, ID: last.ID}, nil
}
