package ops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/pagination"
	"github.com/practivahq/practiva-backend/pkg/types"
)

type stubLedgerRepo struct {
	paymentswebhook.Repository

	events   []models.WebhookEvent
	next     *pagination.Cursor
	gotQuery paymentswebhook.ListEventsQuery
}

func (s *stubLedgerRepo) List(_ context.Context, params paymentswebhook.ListEventsQuery) ([]models.WebhookEvent, *pagination.Cursor, error) {
	s.gotQuery = params
	return s.events, s.next, nil
}

func opsTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func getWebhookEvents(t *testing.T, repo *stubLedgerRepo, target string) *httptest.ResponseRecorder {
	t.Helper()
	handler := ListWebhookEvents(repo, opsTestLogger())
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestListWebhookEventsReturnsPage(t *testing.T) {
	errMsg := "subscription not found"
	repo := &stubLedgerRepo{
		events: []models.WebhookEvent{
			{
				ID:              uuid.New(),
				ExternalEventID: "evt_1",
				EventType:       "invoice.payment_failed",
				Processed:       true,
				Error:           &errMsg,
				ReceivedAt:      time.Now().UTC(),
			},
		},
		next: &pagination.Cursor{At: time.Now().UTC(), ID: uuid.New()},
	}

	rec := getWebhookEvents(t, repo, "/api/v1/ops/webhook-events?failed=true&event_type=invoice.payment_failed")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !repo.gotQuery.Failed || repo.gotQuery.EventType != "invoice.payment_failed" {
		t.Fatalf("filters not forwarded: %+v", repo.gotQuery)
	}
	if repo.gotQuery.Limit != pagination.DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", pagination.DefaultLimit, repo.gotQuery.Limit)
	}

	var envelope types.SuccessEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	payload, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var page webhookEventsPage
	if err := json.Unmarshal(payload, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ExternalEventID != "evt_1" {
		t.Fatalf("unexpected items %+v", page.Items)
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor")
	}
}

func TestListWebhookEventsRejectsBadLimit(t *testing.T) {
	rec := getWebhookEvents(t, &stubLedgerRepo{}, "/api/v1/ops/webhook-events?limit=5000")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListWebhookEventsRejectsBadCursor(t *testing.T) {
	rec := getWebhookEvents(t, &stubLedgerRepo{}, "/api/v1/ops/webhook-events?cursor=not-base64!")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
