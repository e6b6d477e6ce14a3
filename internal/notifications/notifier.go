package notifications

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/practivahq/practiva-backend/pkg/db/models"
	"github.com/practivahq/practiva-backend/pkg/enums"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// NotifierParams wires the notifier's dependencies. Publisher may be nil
// when the deployment runs without Pub/Sub; rows are still persisted.
type NotifierParams struct {
	Repo      Repository
	Publisher publisher
	Logger    *logger.Logger
}

// Notifier delivers practitioner notifications as a best-effort side
// effect: it persists an in-app row and fans the payload out to Pub/Sub for
// email and push delivery. Failures are logged and swallowed; a notification
// that cannot be delivered must never fail or roll back the state
// transition that triggered it.
type Notifier struct {
	repo      Repository
	publisher publisher
	logg      *logger.Logger
	timeout   time.Duration
}

func NewNotifier(params NotifierParams) (*Notifier, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Notifier{
		repo:      params.Repo,
		publisher: params.Publisher,
		logg:      params.Logger,
		timeout:   10 * time.Second,
	}, nil
}

type notificationMessage struct {
	NotificationID string `json:"notification_id"`
	PractitionerID string `json:"practitioner_id"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

// Notify records the notification and publishes it for outbound delivery.
// It returns nothing: callers are mid state-transition and must not care
// whether delivery worked.
func (n *Notifier) Notify(ctx context.Context, practitionerID uuid.UUID, kind enums.NotificationType, title, message string) {
	if practitionerID == uuid.Nil {
		return
	}

	// Detach from the request context so an aborted webhook request cannot
	// cancel delivery midway.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	notification := &models.Notification{
		PractitionerID: practitionerID,
		Type:           kind,
		Title:          title,
		Message:        message,
	}

	var errs error
	if err := n.repo.Create(ctx, notification); err != nil {
		errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist notification"))
	}
	if n.publisher != nil {
		errs = multierr.Append(errs, n.publish(ctx, notification))
	}

	if errs != nil {
		ctx = n.logg.WithPractitionerID(ctx, practitionerID.String())
		n.logg.Error(ctx, "notification delivery incomplete", errs)
	}
}

func (n *Notifier) publish(ctx context.Context, notification *models.Notification) error {
	payload := notificationMessage{
		NotificationID: notification.ID.String(),
		PractitionerID: notification.PractitionerID.String(),
		Kind:           notification.Type.String(),
		Title:          notification.Title,
		Message:        notification.Message,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification message")
	}

	result := n.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":            notification.Type.String(),
			"practitioner_id": notification.PractitionerID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish notification")
	}
	return nil
}
