package ops

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/practivahq/practiva-backend/api/responses"
	"github.com/practivahq/practiva-backend/api/validators"
	"github.com/practivahq/practiva-backend/internal/paymentfailures"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/pagination"
)

type paymentFailureItem struct {
	ID                 uuid.UUID  `json:"id"`
	SubscriptionID     uuid.UUID  `json:"subscription_id"`
	RetryCount         int        `json:"retry_count"`
	NextRetryAt        time.Time  `json:"next_retry_at"`
	LastEscalatedCount int        `json:"last_escalated_count"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type paymentFailuresPage struct {
	Items      []paymentFailureItem `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// ListPaymentFailures exposes dunning state to operators. The unresolved
// filter narrows to subscriptions still failing payment.
func ListPaymentFailures(repo paymentfailures.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		unresolved, err := validators.ParseQueryBool(r, "unresolved")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		failures, next, err := repo.List(ctx, paymentfailures.ListQuery{
			Unresolved: unresolved,
			Limit:      limit,
			Cursor:     cursor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment failures"))
			return
		}

		page := paymentFailuresPage{Items: make([]paymentFailureItem, 0, len(failures))}
		for _, failure := range failures {
			page.Items = append(page.Items, paymentFailureItem{
				ID:                 failure.ID,
				SubscriptionID:     failure.SubscriptionID,
				RetryCount:         failure.RetryCount,
				NextRetryAt:        failure.NextRetryAt,
				LastEscalatedCount: failure.LastEscalatedCount,
				ResolvedAt:         failure.ResolvedAt,
				CreatedAt:          failure.CreatedAt,
			})
		}
		if next != nil {
			page.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, page)
	}
}
