package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/practivahq/practiva-backend/pkg/db/models"
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPractitionerByID(ctx context.Context, id uuid.UUID) (*models.Practitioner, error)
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByExternalID(ctx context.Context, externalSubscriptionID string) (*models.Subscription, error)
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoiceByExternalID(ctx context.Context, externalInvoiceID string) (*models.Invoice, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPractitionerByID(ctx context.Context, id uuid.UUID) (*models.Practitioner, error) {
	var practitioner models.Practitioner
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&practitioner).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &practitioner, nil
}

// UpsertSubscription inserts the subscription or, when a row with the same
// external ID exists, overwrites its event-driven fields in one atomic
// statement. Concurrent deliveries for the same subscription cannot lose
// updates through a read-then-write gap.
func (r *repository) UpsertSubscription(ctx context.Context, subscription *models.Subscription) error {
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"external_customer_id",
				"status",
				"current_period_start",
				"current_period_end",
				"cancel_at_period_end",
				"canceled_at",
				"metadata",
				"updated_at",
			}),
		}).
		Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByExternalID(ctx context.Context, externalSubscriptionID string) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.db.WithContext(ctx).
		Where("external_subscription_id = ?", externalSubscriptionID).
		First(&subscription).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&subscription).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) UpdateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) FindInvoiceByExternalID(ctx context.Context, externalInvoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("external_invoice_id = ?", externalInvoiceID).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}
