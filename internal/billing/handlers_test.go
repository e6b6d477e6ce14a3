package billing

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/enums"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

type stubBillingRepo struct {
	practitioners map[uuid.UUID]*models.Practitioner
	subscriptions map[string]*models.Subscription
	invoices      map[string]*models.Invoice
	upserts       int
	invoiceSaves  int
}

func newStubBillingRepo() *stubBillingRepo {
	return &stubBillingRepo{
		practitioners: map[uuid.UUID]*models.Practitioner{},
		subscriptions: map[string]*models.Subscription{},
		invoices:      map[string]*models.Invoice{},
	}
}

func (s *stubBillingRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubBillingRepo) FindPractitionerByID(_ context.Context, id uuid.UUID) (*models.Practitioner, error) {
	return s.practitioners[id], nil
}

func (s *stubBillingRepo) UpsertSubscription(_ context.Context, subscription *models.Subscription) error {
	s.upserts++
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	copied := *subscription
	s.subscriptions[subscription.ExternalSubscriptionID] = &copied
	return nil
}

func (s *stubBillingRepo) UpdateSubscription(_ context.Context, subscription *models.Subscription) error {
	copied := *subscription
	s.subscriptions[subscription.ExternalSubscriptionID] = &copied
	return nil
}

func (s *stubBillingRepo) FindSubscriptionByExternalID(_ context.Context, externalID string) (*models.Subscription, error) {
	return s.subscriptions[externalID], nil
}

func (s *stubBillingRepo) FindSubscriptionByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	for _, subscription := range s.subscriptions {
		if subscription.ID == id {
			return subscription, nil
		}
	}
	return nil, nil
}

func (s *stubBillingRepo) CreateInvoice(_ context.Context, invoice *models.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	copied := *invoice
	s.invoices[invoice.ExternalInvoiceID] = &copied
	return nil
}

func (s *stubBillingRepo) UpdateInvoice(_ context.Context, invoice *models.Invoice) error {
	s.invoiceSaves++
	copied := *invoice
	s.invoices[invoice.ExternalInvoiceID] = &copied
	return nil
}

func (s *stubBillingRepo) FindInvoiceByExternalID(_ context.Context, externalID string) (*models.Invoice, error) {
	return s.invoices[externalID], nil
}

type stubTracker struct {
	unresolved map[uuid.UUID]*models.PaymentFailure
	records    int
}

func newStubTracker() *stubTracker {
	return &stubTracker{unresolved: map[uuid.UUID]*models.PaymentFailure{}}
}

func (s *stubTracker) RecordFailure(_ context.Context, _ *gorm.DB, subscriptionID uuid.UUID) (*models.PaymentFailure, error) {
	s.records++
	if failure, ok := s.unresolved[subscriptionID]; ok {
		failure.RetryCount++
		failure.NextRetryAt = time.Now().UTC().Add(time.Duration(failure.RetryCount) * 24 * time.Hour)
		return failure, nil
	}
	failure := &models.PaymentFailure{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		RetryCount:     1,
		NextRetryAt:    time.Now().UTC().Add(24 * time.Hour),
	}
	s.unresolved[subscriptionID] = failure
	return failure, nil
}

func (s *stubTracker) Resolve(_ context.Context, _ *gorm.DB, subscriptionID uuid.UUID) (bool, error) {
	if _, ok := s.unresolved[subscriptionID]; ok {
		delete(s.unresolved, subscriptionID)
		return true, nil
	}
	return false, nil
}

type sentNotification struct {
	practitionerID uuid.UUID
	kind           enums.NotificationType
}

type stubNotifier struct {
	sent []sentNotification
}

func (s *stubNotifier) Notify(_ context.Context, practitionerID uuid.UUID, kind enums.NotificationType, _, _ string) {
	s.sent = append(s.sent, sentNotification{practitionerID: practitionerID, kind: kind})
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type handlersFixture struct {
	handlers *Handlers
	repo     *stubBillingRepo
	tracker  *stubTracker
	notifier *stubNotifier
}

func newHandlersFixture(t *testing.T) *handlersFixture {
	t.Helper()

	repo := newStubBillingRepo()
	tracker := newStubTracker()
	notifier := &stubNotifier{}
	handlers, err := NewHandlers(HandlersParams{
		Repo:              repo,
		Tracker:           tracker,
		Notifier:          notifier,
		TransactionRunner: &stubTxRunner{},
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("setup handlers: %v", err)
	}
	return &handlersFixture{handlers: handlers, repo: repo, tracker: tracker, notifier: notifier}
}

func (f *handlersFixture) seedPractitioner() *models.Practitioner {
	practitioner := &models.Practitioner{ID: uuid.New(), Email: "dr@clinic.test", DisplayName: "Dr. Test"}
	f.repo.practitioners[practitioner.ID] = practitioner
	return practitioner
}

func (f *handlersFixture) seedSubscription(practitionerID uuid.UUID, externalID string, status enums.SubscriptionStatus) *models.Subscription {
	subscription := &models.Subscription{
		ID:                     uuid.New(),
		PractitionerID:         practitionerID,
		ExternalSubscriptionID: externalID,
		Status:                 status,
	}
	f.repo.subscriptions[externalID] = subscription
	return subscription
}

func subscriptionEvent(t *testing.T, eventType string, payload map[string]any) *paymentswebhook.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &paymentswebhook.Event{ID: "evt_test", Type: eventType, Data: raw}
}

func TestHandleSubscriptionCreatedPersistsSubscription(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()

	event := subscriptionEvent(t, EventSubscriptionCreated, map[string]any{
		"id":                   "sub_1",
		"customer":             "cus_1",
		"status":               "active",
		"current_period_start": 1767225600,
		"current_period_end":   1769904000,
		"metadata":             map[string]string{"practitioner_id": practitioner.ID.String()},
	})

	if err := fixture.handlers.HandleSubscriptionUpserted(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored := fixture.repo.subscriptions["sub_1"]
	if stored == nil {
		t.Fatal("subscription not persisted")
	}
	if stored.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", stored.Status)
	}
	if stored.PractitionerID != practitioner.ID {
		t.Fatal("subscription not linked to practitioner")
	}
	if stored.CurrentPeriodStart == nil || stored.CurrentPeriodEnd == nil {
		t.Fatal("period fields not set")
	}
}

func TestHandleSubscriptionUpsertedIsIdempotent(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()

	event := subscriptionEvent(t, EventSubscriptionUpdated, map[string]any{
		"id":       "sub_1",
		"status":   "past_due",
		"metadata": map[string]string{"practitioner_id": practitioner.ID.String()},
	})

	if err := fixture.handlers.HandleSubscriptionUpserted(context.Background(), event); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := *fixture.repo.subscriptions["sub_1"]

	if err := fixture.handlers.HandleSubscriptionUpserted(context.Background(), event); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second := *fixture.repo.subscriptions["sub_1"]

	if first.ID != second.ID || first.Status != second.Status || first.PractitionerID != second.PractitionerID {
		t.Fatalf("re-applying the same event changed state: %+v vs %+v", first, second)
	}
}

func TestHandleSubscriptionCreatedUnknownPractitionerIsTerminal(t *testing.T) {
	fixture := newHandlersFixture(t)

	event := subscriptionEvent(t, EventSubscriptionCreated, map[string]any{
		"id":       "sub_1",
		"status":   "active",
		"metadata": map[string]string{"practitioner_id": uuid.NewString()},
	})

	err := fixture.handlers.HandleSubscriptionUpserted(context.Background(), event)
	if err == nil {
		t.Fatal("expected error for unknown practitioner")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("missing practitioner must classify terminal")
	}
}

func TestHandleSubscriptionDeletedCancels(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)

	event := subscriptionEvent(t, EventSubscriptionDeleted, map[string]any{"id": "sub_1"})
	if err := fixture.handlers.HandleSubscriptionDeleted(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored := fixture.repo.subscriptions["sub_1"]
	if stored.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %s", stored.Status)
	}
	if stored.CanceledAt == nil {
		t.Fatal("canceledAt not set")
	}
	if len(fixture.notifier.sent) != 1 || fixture.notifier.sent[0].kind != enums.NotificationTypeSubscriptionCanceled {
		t.Fatalf("expected cancellation notification, got %+v", fixture.notifier.sent)
	}

	// Applying again is safe and sends no second notification.
	if err := fixture.handlers.HandleSubscriptionDeleted(context.Background(), event); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(fixture.notifier.sent) != 1 {
		t.Fatal("already-canceled subscription must not notify again")
	}
}

func TestHandleInvoiceCreatedCreatesOnce(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)

	event := subscriptionEvent(t, EventInvoiceCreated, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
		"status":       "open",
		"amount_due":   5000,
	})
	if err := fixture.handlers.HandleInvoiceCreated(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	invoice := fixture.repo.invoices["in_1"]
	if invoice == nil || invoice.Status != enums.InvoiceStatusOpen || invoice.AmountDueCents != 5000 {
		t.Fatalf("unexpected invoice %+v", invoice)
	}
}

func TestHandleInvoiceCreatedNeverRegressesPaidInvoice(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	subscription := fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)

	paidAt := time.Now().UTC()
	fixture.repo.invoices["in_1"] = &models.Invoice{
		ID:                uuid.New(),
		SubscriptionID:    subscription.ID,
		ExternalInvoiceID: "in_1",
		Status:            enums.InvoiceStatusPaid,
		PaidAt:            &paidAt,
	}

	// The created event arrives late, after the payment.
	event := subscriptionEvent(t, EventInvoiceCreated, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
		"status":       "open",
	})
	if err := fixture.handlers.HandleInvoiceCreated(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if fixture.repo.invoices["in_1"].Status != enums.InvoiceStatusPaid {
		t.Fatal("late created event regressed a paid invoice")
	}
}

func TestHandleInvoicePaymentSucceededMarksPaidAndResolves(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	subscription := fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)
	fixture.repo.invoices["in_1"] = &models.Invoice{
		ID:                uuid.New(),
		SubscriptionID:    subscription.ID,
		ExternalInvoiceID: "in_1",
		Status:            enums.InvoiceStatusOpen,
		AmountDueCents:    5000,
	}
	if _, err := fixture.tracker.RecordFailure(context.Background(), nil, subscription.ID); err != nil {
		t.Fatalf("seed failure: %v", err)
	}

	event := subscriptionEvent(t, EventInvoicePaymentSucceeded, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
		"amount_paid":  5000,
	})
	if err := fixture.handlers.HandleInvoicePaymentSucceeded(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	invoice := fixture.repo.invoices["in_1"]
	if invoice.Status != enums.InvoiceStatusPaid || invoice.PaidAt == nil {
		t.Fatalf("expected paid invoice, got %+v", invoice)
	}
	if len(fixture.tracker.unresolved) != 0 {
		t.Fatal("payment success must resolve the open failure")
	}
	if len(fixture.notifier.sent) != 1 || fixture.notifier.sent[0].kind != enums.NotificationTypePaymentRecovered {
		t.Fatalf("expected recovery notification, got %+v", fixture.notifier.sent)
	}
}

func TestHandleInvoicePaymentSucceededIsIdempotent(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	subscription := fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)
	fixture.repo.invoices["in_1"] = &models.Invoice{
		ID:                uuid.New(),
		SubscriptionID:    subscription.ID,
		ExternalInvoiceID: "in_1",
		Status:            enums.InvoiceStatusOpen,
		AmountDueCents:    5000,
	}

	event := subscriptionEvent(t, EventInvoicePaymentSucceeded, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
		"amount_paid":  5000,
	})
	if err := fixture.handlers.HandleInvoicePaymentSucceeded(context.Background(), event); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := *fixture.repo.invoices["in_1"]

	if err := fixture.handlers.HandleInvoicePaymentSucceeded(context.Background(), event); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second := *fixture.repo.invoices["in_1"]

	if !first.PaidAt.Equal(*second.PaidAt) || first.Status != second.Status {
		t.Fatalf("re-applying payment success changed state: %+v vs %+v", first, second)
	}
}

func TestHandleInvoicePaymentSucceededCreatesInvoiceWhenAbsent(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)

	// Payment event beat invoice.created.
	event := subscriptionEvent(t, EventInvoicePaymentSucceeded, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
		"amount_due":   5000,
		"amount_paid":  5000,
	})
	if err := fixture.handlers.HandleInvoicePaymentSucceeded(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	invoice := fixture.repo.invoices["in_1"]
	if invoice == nil || invoice.Status != enums.InvoiceStatusPaid {
		t.Fatalf("expected paid invoice created, got %+v", invoice)
	}
}

func TestHandleInvoicePaymentFailedTracksAndNotifies(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	subscription := fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)
	fixture.repo.invoices["in_1"] = &models.Invoice{
		ID:                uuid.New(),
		SubscriptionID:    subscription.ID,
		ExternalInvoiceID: "in_1",
		Status:            enums.InvoiceStatusOpen,
	}

	event := subscriptionEvent(t, EventInvoicePaymentFailed, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
	})
	if err := fixture.handlers.HandleInvoicePaymentFailed(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if fixture.repo.invoices["in_1"].Status != enums.InvoiceStatusUncollectible {
		t.Fatal("invoice not marked uncollectible")
	}
	failure := fixture.tracker.unresolved[subscription.ID]
	if failure == nil || failure.RetryCount != 1 {
		t.Fatalf("expected tracked failure with retryCount=1, got %+v", failure)
	}
	if len(fixture.notifier.sent) != 1 || fixture.notifier.sent[0].kind != enums.NotificationTypePaymentFailed {
		t.Fatalf("expected failure notification, got %+v", fixture.notifier.sent)
	}
}

func TestHandleInvoicePaymentFailedIgnoresPaidInvoice(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	subscription := fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)
	paidAt := time.Now().UTC()
	fixture.repo.invoices["in_1"] = &models.Invoice{
		ID:                uuid.New(),
		SubscriptionID:    subscription.ID,
		ExternalInvoiceID: "in_1",
		Status:            enums.InvoiceStatusPaid,
		PaidAt:            &paidAt,
	}

	event := subscriptionEvent(t, EventInvoicePaymentFailed, map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
	})
	if err := fixture.handlers.HandleInvoicePaymentFailed(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if fixture.repo.invoices["in_1"].Status != enums.InvoiceStatusPaid {
		t.Fatal("stale failure event regressed a paid invoice")
	}
	if fixture.tracker.records != 0 {
		t.Fatal("stale failure event must not open a dunning record")
	}
	if len(fixture.notifier.sent) != 0 {
		t.Fatal("stale failure event must not notify")
	}
}

func TestHandleInvoiceEventsUnknownSubscriptionIsTerminal(t *testing.T) {
	fixture := newHandlersFixture(t)

	event := subscriptionEvent(t, EventInvoicePaymentFailed, map[string]any{
		"id":           "in_1",
		"subscription": "sub_missing",
	})
	err := fixture.handlers.HandleInvoicePaymentFailed(context.Background(), event)
	if err == nil {
		t.Fatal("expected error")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("missing subscription must classify terminal")
	}
}

func TestPaymentFailedThenSucceededScenario(t *testing.T) {
	fixture := newHandlersFixture(t)
	practitioner := fixture.seedPractitioner()
	subscription := fixture.seedSubscription(practitioner.ID, "sub_1", enums.SubscriptionStatusActive)
	fixture.repo.invoices["in_1"] = &models.Invoice{
		ID:                uuid.New(),
		SubscriptionID:    subscription.ID,
		ExternalInvoiceID: "in_1",
		Status:            enums.InvoiceStatusOpen,
	}

	failed := subscriptionEvent(t, EventInvoicePaymentFailed, map[string]any{
		"id": "in_1", "subscription": "sub_1",
	})
	if err := fixture.handlers.HandleInvoicePaymentFailed(context.Background(), failed); err != nil {
		t.Fatalf("failed event: %v", err)
	}
	if fixture.tracker.unresolved[subscription.ID].RetryCount != 1 {
		t.Fatal("expected retryCount=1 after first failure")
	}

	succeeded := subscriptionEvent(t, EventInvoicePaymentSucceeded, map[string]any{
		"id": "in_1", "subscription": "sub_1", "amount_paid": 5000,
	})
	if err := fixture.handlers.HandleInvoicePaymentSucceeded(context.Background(), succeeded); err != nil {
		t.Fatalf("succeeded event: %v", err)
	}

	if len(fixture.tracker.unresolved) != 0 {
		t.Fatal("success must resolve the failure")
	}
	if fixture.repo.subscriptions["sub_1"].Status != enums.SubscriptionStatusActive {
		t.Fatal("subscription status must be unaffected")
	}
}
