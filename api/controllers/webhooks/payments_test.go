package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

type stubProcessor struct {
	result *paymentswebhook.ProcessResult
	err    error

	gotBody      []byte
	gotSignature string
}

func (s *stubProcessor) Process(_ context.Context, rawBody []byte, signatureHeader string) (*paymentswebhook.ProcessResult, error) {
	s.gotBody = rawBody
	s.gotSignature = signatureHeader
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func deliverWebhook(t *testing.T, processor *stubProcessor) *httptest.ResponseRecorder {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	handler := PaymentsWebhook(processor, logg)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set(paymentswebhook.SignatureHeader, "sha256=abc")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestPaymentsWebhookAcknowledgesProcessed(t *testing.T) {
	processor := &stubProcessor{result: &paymentswebhook.ProcessResult{Status: paymentswebhook.StatusProcessed}}

	rec := deliverWebhook(t, processor)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeAck(t, rec); body["received"] != true {
		t.Fatalf("expected received:true, got %v", body)
	}
	if string(processor.gotBody) != `{"id":"evt_1"}` {
		t.Fatal("raw body must reach the processor unmodified")
	}
	if processor.gotSignature != "sha256=abc" {
		t.Fatal("signature header must reach the processor")
	}
}

func TestPaymentsWebhookAcknowledgesDuplicates(t *testing.T) {
	processor := &stubProcessor{result: &paymentswebhook.ProcessResult{Status: paymentswebhook.StatusDuplicate}}

	rec := deliverWebhook(t, processor)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicates, got %d", rec.Code)
	}
}

func TestPaymentsWebhookAcknowledgesTerminalWithError(t *testing.T) {
	processor := &stubProcessor{result: &paymentswebhook.ProcessResult{
		Status: paymentswebhook.StatusTerminal,
		Err:    pkgerrors.New(pkgerrors.CodeNotFound, "subscription sub_1 not found"),
	}}

	rec := deliverWebhook(t, processor)

	if rec.Code != http.StatusOK {
		t.Fatalf("terminal failures must answer 200, got %d", rec.Code)
	}
	body := decodeAck(t, rec)
	if body["received"] != true {
		t.Fatalf("expected received:true, got %v", body)
	}
	if body["error"] == nil || body["error"] == "" {
		t.Fatal("terminal acknowledgement must carry the error")
	}
}

func TestPaymentsWebhookAsksForRedeliveryOnRetryable(t *testing.T) {
	processor := &stubProcessor{result: &paymentswebhook.ProcessResult{
		Status: paymentswebhook.StatusRetryable,
		Err:    pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"),
	}}

	rec := deliverWebhook(t, processor)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("retryable failures must answer 503, got %d", rec.Code)
	}
}

func TestPaymentsWebhookRejectsBadSignature(t *testing.T) {
	processor := &stubProcessor{err: pkgerrors.New(pkgerrors.CodeValidation, "signature mismatch")}

	rec := deliverWebhook(t, processor)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for verification failure, got %d", rec.Code)
	}
}
