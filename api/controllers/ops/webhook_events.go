package ops

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/api/responses"
	"github.com/practivahq/practiva-backend/api/validators"
	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/pagination"
)

type webhookEventsQuery struct {
	EventType string `json:"event_type" validate:"omitempty,max=120"`
	Failed    bool   `json:"failed"`
	Limit     int    `json:"limit" validate:"min=1,max=100"`
}

type webhookEventItem struct {
	ID              uuid.UUID  `json:"id"`
	ExternalEventID string     `json:"external_event_id"`
	EventType       string     `json:"event_type"`
	Processed       bool       `json:"processed"`
	Error           *string    `json:"error,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

type webhookEventsPage struct {
	Items      []webhookEventItem `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// ListWebhookEvents exposes the event ledger to operators, newest first.
// The failed filter narrows to processed events whose handler failed
// terminally; those rows carry the recorded error.
func ListWebhookEvents(repo paymentswebhook.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		failed, err := validators.ParseQueryBool(r, "failed")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		query := webhookEventsQuery{
			EventType: strings.TrimSpace(r.URL.Query().Get("event_type")),
			Failed:    failed,
			Limit:     limit,
		}
		if err := validators.ValidateStruct(query); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		events, next, err := repo.List(ctx, paymentswebhook.ListEventsQuery{
			EventType: query.EventType,
			Failed:    query.Failed,
			Limit:     query.Limit,
			Cursor:    cursor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook events"))
			return
		}

		page := webhookEventsPage{Items: make([]webhookEventItem, 0, len(events))}
		for _, event := range events {
			page.Items = append(page.Items, webhookEventItem{
				ID:              event.ID,
				ExternalEventID: event.ExternalEventID,
				EventType:       event.EventType,
				Processed:       event.Processed,
				Error:           event.Error,
				ReceivedAt:      event.ReceivedAt,
				ProcessedAt:     event.ProcessedAt,
			})
		}
		if next != nil {
			page.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, page)
	}
}
