package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/pkg/kafkax"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

// Handler persists every consumed domain event as an immutable audit entry.
// Saves are idempotent on the message's (topic, partition, offset), so
// redelivery after a crash-before-commit is harmless.
type Handler struct {
	store Store
	log   *logger.Logger
}

// NewHandler creates an audit handler writing to the given store.
func NewHandler(store Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Get()
	}
	return &Handler{store: store, log: log}
}

// Handle records the event. Store connectivity failures are retryable;
// a duplicate entry means this message was already recorded and succeeds.
func (h *Handler) Handle(ctx context.Context, msg *kafkax.Message) error {
	env := msg.Envelope
	if env == nil {
		return kafkax.Permanent("message has no decoded envelope", nil)
	}

	entry := &Entry{
		ID:         uuid.New().String(),
		EventType:  env.EventType,
		Topic:      msg.Topic,
		Partition:  msg.Partition,
		Offset:     msg.Offset,
		CompanyID:  env.CompanyID,
		Payload:    append([]byte(nil), msg.Raw...),
		OccurredAt: env.OccurredAt,
		RecordedAt: time.Now().UTC(),
	}

	if err := h.store.Save(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			h.log.DebugContext(ctx, "audit entry already recorded, skipping",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		return kafkax.Retryable("audit store unavailable", err)
	}

	h.log.DebugContext(ctx, "audit entry recorded",
		zap.String("event_type", env.EventType),
		zap.String("company_id", env.CompanyID),
	)
	return nil
}
