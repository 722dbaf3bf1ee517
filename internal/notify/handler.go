package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/kafkax"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

// Handler turns customer events into notifications addressed to the
// companies allowed to see the customer. The distribution list travels in
// the event payload (visible_to_company_ids) so the worker needs no access
// to the hierarchy index.
type Handler struct {
	store Store
	log   *logger.Logger
}

// NewHandler creates a notification handler writing to the given store.
func NewHandler(store Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Get()
	}
	return &Handler{store: store, log: log}
}

// Handle fans the event out as a notification. Events without a customer_id
// or distribution list are permanent failures; store errors are retryable.
func (h *Handler) Handle(ctx context.Context, msg *kafkax.Message) error {
	env := msg.Envelope
	if env == nil {
		return kafkax.Permanent("message has no decoded envelope", nil)
	}

	customerID, ok := env.PayloadString("customer_id")
	if !ok || customerID == "" {
		return kafkax.Permanent("payload missing customer_id", nil)
	}
	name, _ := env.PayloadString("name")

	visibleTo, ok := env.PayloadStrings("visible_to_company_ids")
	if !ok || len(visibleTo) == 0 {
		// Fall back to the originating company so the event is never
		// silently undeliverable.
		if env.CompanyID == "" {
			return kafkax.Permanent("no distribution list and no company_id", nil)
		}
		visibleTo = []string{env.CompanyID}
	}

	n := &Notification{
		ID:                  uuid.New().String(),
		Title:               titleFor(env.EventType),
		Message:             messageFor(env.EventType, name),
		EventType:           env.EventType,
		RelatedEntityID:     customerID,
		VisibleToCompanyIDs: visibleTo,
		CreatedAt:           time.Now().UTC(),
	}

	if err := h.store.Save(ctx, n); err != nil {
		return kafkax.Retryable("notification store unavailable", err)
	}

	h.log.DebugContext(ctx, "notification stored",
		zap.String("event_type", env.EventType),
		zap.String("related_entity_id", customerID),
		zap.Int("recipients", len(visibleTo)),
	)
	return nil
}

func titleFor(eventType string) string {
	switch eventType {
	case event.TopicCustomerCreated:
		return "New customer"
	case event.TopicCustomerUpdated:
		return "Customer updated"
	default:
		return eventType
	}
}

func messageFor(eventType, name string) string {
	if name == "" {
		name = "A customer"
	}
	switch eventType {
	case event.TopicCustomerCreated:
		return fmt.Sprintf("%s was added", name)
	case event.TopicCustomerUpdated:
		return fmt.Sprintf("%s was updated", name)
	default:
		return name
	}
}
