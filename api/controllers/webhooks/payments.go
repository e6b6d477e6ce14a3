package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/practivahq/practiva-backend/api/responses"
	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

// maxPayloadBytes bounds the webhook body; processor events are a few KB.
const maxPayloadBytes = 1 << 20

type paymentsProcessor interface {
	Process(ctx context.Context, rawBody []byte, signatureHeader string) (*paymentswebhook.ProcessResult, error)
}

type acknowledgement struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// PaymentsWebhook receives processor deliveries. The response status is the
// redelivery contract: 200 means the processor must not resend (including
// duplicates and terminal failures, which a retry can never fix), 5xx means
// it should.
func PaymentsWebhook(processor paymentsProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if processor == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := processor.Process(ctx, payload, r.Header.Get(paymentswebhook.SignatureHeader))
		if err != nil {
			// Verification failed: reject without acknowledging.
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch result.Status {
		case paymentswebhook.StatusProcessed, paymentswebhook.StatusDuplicate:
			responses.WriteJSON(w, http.StatusOK, acknowledgement{Received: true})
		case paymentswebhook.StatusTerminal:
			// Acknowledged so the processor stops resending; the failure is
			// preserved in the ledger for operators.
			ack := acknowledgement{Received: true}
			if result.Err != nil {
				ack.Error = result.Err.Error()
			}
			responses.WriteJSON(w, http.StatusOK, ack)
		case paymentswebhook.StatusRetryable:
			responses.WriteJSON(w, http.StatusServiceUnavailable, acknowledgement{Received: false})
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "unhandled webhook status"))
		}
	}
}
