package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
)

// metadataPractitionerKey is the metadata field the checkout flow stamps on
// every processor subscription so webhook events can be tied back to a
// tenant.
const metadataPractitionerKey = "practitioner_id"

type subscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata"`
}

func decodeSubscriptionPayload(data json.RawMessage) (*subscriptionPayload, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription payload")
	}
	if payload.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	return &payload, nil
}

func (p *subscriptionPayload) practitionerID() (uuid.UUID, error) {
	raw, ok := p.Metadata[metadataPractitionerKey]
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "practitioner metadata missing from subscription")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse practitioner id")
	}
	return id, nil
}

func (p *subscriptionPayload) periodStart() *time.Time {
	return unixTime(p.CurrentPeriodStart)
}

func (p *subscriptionPayload) periodEnd() *time.Time {
	return unixTime(p.CurrentPeriodEnd)
}

func (p *subscriptionPayload) canceledAt() *time.Time {
	return unixTime(p.CanceledAt)
}

type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Status       string `json:"status"`
	AmountDue    int64  `json:"amount_due"`
	AmountPaid   int64  `json:"amount_paid"`
	DueDate      int64  `json:"due_date"`
}

func decodeInvoicePayload(data json.RawMessage) (*invoicePayload, error) {
	var payload invoicePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice payload")
	}
	if payload.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if payload.Subscription == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice subscription id is required")
	}
	return &payload, nil
}

func (p *invoicePayload) dueDate() *time.Time {
	return unixTime(p.DueDate)
}

func unixTime(value int64) *time.Time {
	if value <= 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}
