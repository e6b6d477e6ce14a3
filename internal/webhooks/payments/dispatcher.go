package paymentswebhook

import (
	"context"
	"fmt"
	"sort"

	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
)

// HandlerFunc applies one event type's state transition. Handlers must be
// idempotent: re-applying the same event leaves identical state.
type HandlerFunc func(ctx context.Context, event *Event) error

// Result is the dispatcher's classification of one handler run. Terminal
// failures carry Success=false, Retryable=false: the sender must not
// redeliver because redelivery cannot fix a missing precondition that only
// another event resolves.
type Result struct {
	Success   bool
	Retryable bool
	Err       error
}

// Registry maps event type strings to handlers. New upstream types are added
// by registration; the dispatch control flow never changes.
type Registry struct {
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

// Register binds a handler to an event type. Registering the same type twice
// is a programming error and panics during startup wiring.
func (r *Registry) Register(eventType string, handler HandlerFunc) {
	if eventType == "" || handler == nil {
		panic("registry: event type and handler are required")
	}
	if _, exists := r.handlers[eventType]; exists {
		panic(fmt.Sprintf("registry: duplicate handler for %q", eventType))
	}
	r.handlers[eventType] = handler
}

func (r *Registry) lookup(eventType string) (HandlerFunc, bool) {
	handler, ok := r.handlers[eventType]
	return handler, ok
}

// Types returns the registered event types, sorted. Used for startup logging.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatcher routes verified, deduplicated events to handlers and classifies
// failures. Handler errors never bubble unclassified to the HTTP layer.
type Dispatcher struct {
	registry *Registry
	logg     *logger.Logger
}

func NewDispatcher(registry *Registry, logg *logger.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "registry required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Dispatcher{registry: registry, logg: logg}, nil
}

// Dispatch runs the handler for the event's type. Unknown types succeed
// without error so new upstream event types never break the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) Result {
	if event == nil {
		err := pkgerrors.New(pkgerrors.CodeValidation, "event is required")
		return Result{Success: false, Retryable: false, Err: err}
	}

	ctx = d.logg.WithEventID(ctx, event.ID)
	ctx = d.logg.WithEventType(ctx, event.Type)

	handler, ok := d.registry.lookup(event.Type)
	if !ok {
		d.logg.Info(ctx, "no handler registered, acknowledging event")
		return Result{Success: true}
	}

	if err := handler(ctx, event); err != nil {
		retryable := pkgerrors.IsRetryable(err)
		if retryable {
			d.logg.Warn(ctx, fmt.Sprintf("handler failed, expecting redelivery: %v", err))
		} else {
			d.logg.Error(ctx, "handler failed terminally", err)
		}
		return Result{Success: false, Retryable: retryable, Err: err}
	}

	return Result{Success: true}
}
