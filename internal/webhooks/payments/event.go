package paymentswebhook

import (
	"encoding/json"
	"strings"
	"time"

	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
)

// Event is one verified delivery from the payment processor. Data stays raw
// until a handler that knows the type decodes it.
type Event struct {
	ID        string
	Type      string
	CreatedAt time.Time
	Data      json.RawMessage
}

type eventEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Created int64           `json:"created"`
}

// ParseEvent decodes the processor envelope from the raw request body.
func ParseEvent(rawBody []byte) (*Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event envelope")
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if strings.TrimSpace(envelope.Type) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event type is required")
	}

	created := time.Now().UTC()
	if envelope.Created > 0 {
		created = time.Unix(envelope.Created, 0).UTC()
	}
	return &Event{
		ID:        envelope.ID,
		Type:      envelope.Type,
		CreatedAt: created,
		Data:      envelope.Data,
	}, nil
}
