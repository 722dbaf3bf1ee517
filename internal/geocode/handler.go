package geocode

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/pkg/kafkax"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

// Handler geocodes newly created customers and writes the coordinates back
// to the CRM service. Missing identifiers or addresses are permanent
// failures; network faults and server errors on the write-back are
// retryable so the customer eventually gets coordinates.
type Handler struct {
	geocoder Geocoder
	updater  CoordinateUpdater
	log      *logger.Logger
}

// NewHandler creates a geocoding handler.
func NewHandler(geocoder Geocoder, updater CoordinateUpdater, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Get()
	}
	return &Handler{geocoder: geocoder, updater: updater, log: log}
}

// Handle resolves the customer address to coordinates and PATCHes them back.
func (h *Handler) Handle(ctx context.Context, msg *kafkax.Message) error {
	env := msg.Envelope
	if env == nil {
		return kafkax.Permanent("message has no decoded envelope", nil)
	}

	customerID, ok := env.PayloadString("customer_id")
	if !ok || customerID == "" {
		return kafkax.Permanent("payload missing customer_id", nil)
	}
	address, ok := env.PayloadString("address")
	if !ok || address == "" {
		return kafkax.Permanent("payload missing address", nil)
	}

	coords, err := h.geocoder.Geocode(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return kafkax.Retryable("geocoding failed", err)
	}

	if err := h.updater.UpdateCoordinates(ctx, customerID, coords); err != nil {
		return classifyUpdateError(err)
	}

	h.log.DebugContext(ctx, "customer geocoded",
		zap.String("customer_id", customerID),
		zap.Float64("latitude", coords.Latitude),
		zap.Float64("longitude", coords.Longitude),
	)
	return nil
}

// classifyUpdateError maps write-back failures: 4xx responses will never
// succeed on retry, while timeouts, connection faults, and 5xx responses
// are expected to clear.
func classifyUpdateError(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return kafkax.Permanent("coordinate update rejected", err)
		}
		return kafkax.Retryable("coordinate update failed upstream", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return kafkax.Retryable("coordinate update network fault", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return kafkax.Retryable("coordinate update timed out", err)
	}
	return kafkax.Retryable("coordinate update failed", err)
}
