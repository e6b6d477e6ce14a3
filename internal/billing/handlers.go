package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/enums"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

// Processor event types the billing handlers subscribe to.
const (
	EventSubscriptionCreated     = "subscription.created"
	EventSubscriptionUpdated     = "subscription.updated"
	EventSubscriptionDeleted     = "subscription.deleted"
	EventInvoiceCreated          = "invoice.created"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier sends best-effort practitioner notifications. Implementations
// must log their own failures; handlers never block on or fail with them.
type Notifier interface {
	Notify(ctx context.Context, practitionerID uuid.UUID, kind enums.NotificationType, title, message string)
}

type failureTracker interface {
	RecordFailure(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (*models.PaymentFailure, error)
	Resolve(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (bool, error)
}

type HandlersParams struct {
	Repo              Repository
	Tracker           failureTracker
	Notifier          Notifier
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Handlers applies billing state transitions for processor events. Every
// handler is an idempotent upsert-style transition: re-applying the same
// event leaves identical state.
type Handlers struct {
	repo     Repository
	tracker  failureTracker
	notifier Notifier
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

func NewHandlers(params HandlersParams) (*Handlers, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "failure tracker required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Handlers{
		repo:     params.Repo,
		tracker:  params.Tracker,
		notifier: params.Notifier,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// Register wires every billing handler into the dispatch registry.
func (h *Handlers) Register(registry *paymentswebhook.Registry) {
	registry.Register(EventSubscriptionCreated, h.HandleSubscriptionUpserted)
	registry.Register(EventSubscriptionUpdated, h.HandleSubscriptionUpserted)
	registry.Register(EventSubscriptionDeleted, h.HandleSubscriptionDeleted)
	registry.Register(EventInvoiceCreated, h.HandleInvoiceCreated)
	registry.Register(EventInvoicePaymentSucceeded, h.HandleInvoicePaymentSucceeded)
	registry.Register(EventInvoicePaymentFailed, h.HandleInvoicePaymentFailed)
}

// HandleSubscriptionUpserted covers subscription.created and
// subscription.updated: both overwrite the event-driven fields keyed by the
// external subscription ID.
func (h *Handlers) HandleSubscriptionUpserted(ctx context.Context, event *paymentswebhook.Event) error {
	payload, err := decodeSubscriptionPayload(event.Data)
	if err != nil {
		return err
	}
	status, err := enums.ParseSubscriptionStatus(payload.Status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse subscription status")
	}

	return h.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := h.repo.WithTx(tx)

		existing, err := repo.FindSubscriptionByExternalID(ctx, payload.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}

		practitionerID := uuid.Nil
		if existing != nil {
			practitionerID = existing.PractitionerID
		} else {
			practitionerID, err = payload.practitionerID()
			if err != nil {
				return err
			}
			practitioner, err := repo.FindPractitionerByID(ctx, practitionerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load practitioner")
			}
			if practitioner == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "practitioner not found for subscription")
			}
		}

		subscription := &models.Subscription{
			PractitionerID:         practitionerID,
			ExternalSubscriptionID: payload.ID,
			ExternalCustomerID:     payload.Customer,
			Status:                 status,
			CurrentPeriodStart:     payload.periodStart(),
			CurrentPeriodEnd:       payload.periodEnd(),
			CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
			CanceledAt:             payload.canceledAt(),
		}
		if existing != nil {
			subscription.ID = existing.ID
			subscription.Metadata = existing.Metadata
		}
		if err := repo.UpsertSubscription(ctx, subscription); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
		}
		return nil
	})
}

// HandleSubscriptionDeleted transitions the subscription to canceled. Safe
// to apply when already canceled.
func (h *Handlers) HandleSubscriptionDeleted(ctx context.Context, event *paymentswebhook.Event) error {
	payload, err := decodeSubscriptionPayload(event.Data)
	if err != nil {
		return err
	}

	var notifyPractitioner uuid.UUID
	err = h.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := h.repo.WithTx(tx)

		subscription, err := repo.FindSubscriptionByExternalID(ctx, payload.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if subscription == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if subscription.Status == enums.SubscriptionStatusCanceled {
			return nil
		}

		subscription.Status = enums.SubscriptionStatusCanceled
		if subscription.CanceledAt == nil {
			canceledAt := h.now().UTC()
			if fromEvent := payload.canceledAt(); fromEvent != nil {
				canceledAt = *fromEvent
			}
			subscription.CanceledAt = &canceledAt
		}
		if err := repo.UpdateSubscription(ctx, subscription); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
		}
		notifyPractitioner = subscription.PractitionerID
		return nil
	})
	if err != nil {
		return err
	}

	if notifyPractitioner != uuid.Nil {
		h.notifier.Notify(ctx, notifyPractitioner, enums.NotificationTypeSubscriptionCanceled,
			"Subscription canceled",
			"Your subscription has been canceled. Billing has stopped.")
	}
	return nil
}

// HandleInvoiceCreated creates the invoice if absent. An existing row is
// left untouched: a replayed or late-arriving created event must never pull
// a lifecycle-later status backwards.
func (h *Handlers) HandleInvoiceCreated(ctx context.Context, event *paymentswebhook.Event) error {
	payload, err := decodeInvoicePayload(event.Data)
	if err != nil {
		return err
	}
	status := enums.InvoiceStatusOpen
	if payload.Status != "" {
		status, err = enums.ParseInvoiceStatus(payload.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse invoice status")
		}
	}

	return h.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := h.repo.WithTx(tx)

		existing, err := repo.FindInvoiceByExternalID(ctx, payload.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}
		if existing != nil {
			return nil
		}

		subscription, err := repo.FindSubscriptionByExternalID(ctx, payload.Subscription)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if subscription == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found for invoice")
		}

		invoice := &models.Invoice{
			SubscriptionID:    subscription.ID,
			ExternalInvoiceID: payload.ID,
			Status:            status,
			AmountDueCents:    payload.AmountDue,
			AmountPaidCents:   payload.AmountPaid,
			DueDate:           payload.dueDate(),
		}
		if err := repo.CreateInvoice(ctx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}
		return nil
	})
}

// HandleInvoicePaymentSucceeded marks the invoice paid and resolves any open
// payment failure for the owning subscription, regardless of arrival order
// relative to the failed events.
func (h *Handlers) HandleInvoicePaymentSucceeded(ctx context.Context, event *paymentswebhook.Event) error {
	payload, err := decodeInvoicePayload(event.Data)
	if err != nil {
		return err
	}

	var (
		notifyPractitioner uuid.UUID
		recovered          bool
	)
	err = h.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := h.repo.WithTx(tx)

		subscription, err := repo.FindSubscriptionByExternalID(ctx, payload.Subscription)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if subscription == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found for invoice")
		}

		invoice, err := repo.FindInvoiceByExternalID(ctx, payload.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		paidAt := h.now().UTC()
		if invoice == nil {
			// Payment event won the race against invoice.created.
			invoice = &models.Invoice{
				SubscriptionID:    subscription.ID,
				ExternalInvoiceID: payload.ID,
				Status:            enums.InvoiceStatusPaid,
				AmountDueCents:    payload.AmountDue,
				AmountPaidCents:   payload.AmountPaid,
				DueDate:           payload.dueDate(),
				PaidAt:            &paidAt,
			}
			if err := repo.CreateInvoice(ctx, invoice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create paid invoice")
			}
		} else if invoice.Status != enums.InvoiceStatusPaid {
			if !invoice.Status.CanTransitionTo(enums.InvoiceStatusPaid) {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("invoice cannot move from %s to paid", invoice.Status))
			}
			invoice.Status = enums.InvoiceStatusPaid
			invoice.AmountPaidCents = payload.AmountPaid
			if invoice.AmountPaidCents == 0 {
				invoice.AmountPaidCents = invoice.AmountDueCents
			}
			invoice.PaidAt = &paidAt
			if err := repo.UpdateInvoice(ctx, invoice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
			}
		}

		recovered, err = h.tracker.Resolve(ctx, tx, subscription.ID)
		if err != nil {
			return err
		}
		notifyPractitioner = subscription.PractitionerID
		return nil
	})
	if err != nil {
		return err
	}

	if recovered && notifyPractitioner != uuid.Nil {
		h.notifier.Notify(ctx, notifyPractitioner, enums.NotificationTypePaymentRecovered,
			"Payment recovered",
			"Your latest invoice was paid and your account is back in good standing.")
	}
	return nil
}

// HandleInvoicePaymentFailed marks the invoice uncollectible, unless it has
// already been paid, and records the failure for dunning.
func (h *Handlers) HandleInvoicePaymentFailed(ctx context.Context, event *paymentswebhook.Event) error {
	payload, err := decodeInvoicePayload(event.Data)
	if err != nil {
		return err
	}

	var (
		notifyPractitioner uuid.UUID
		retryCount         int
	)
	err = h.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := h.repo.WithTx(tx)

		subscription, err := repo.FindSubscriptionByExternalID(ctx, payload.Subscription)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if subscription == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found for invoice")
		}

		invoice, err := repo.FindInvoiceByExternalID(ctx, payload.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}
		if invoice == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}

		// A success event already landed; the stale failure must not
		// regress the invoice or open a dunning record.
		if invoice.Status == enums.InvoiceStatusPaid {
			return nil
		}

		if invoice.Status != enums.InvoiceStatusUncollectible {
			invoice.Status = enums.InvoiceStatusUncollectible
			if err := repo.UpdateInvoice(ctx, invoice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice uncollectible")
			}
		}

		failure, err := h.tracker.RecordFailure(ctx, tx, subscription.ID)
		if err != nil {
			return err
		}
		retryCount = failure.RetryCount
		notifyPractitioner = subscription.PractitionerID
		return nil
	})
	if err != nil {
		return err
	}

	if notifyPractitioner != uuid.Nil && retryCount > 0 {
		h.notifier.Notify(ctx, notifyPractitioner, enums.NotificationTypePaymentFailed,
			"Payment failed",
			fmt.Sprintf("We could not collect your latest invoice (attempt %d). Please update your payment method.", retryCount))
	}
	return nil
}
