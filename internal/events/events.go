// Package events publishes reservation domain events to the message broker.
// Consumers (notifications, analytics) live outside this service.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	ReservationCreated   Type = "reservation.created"
	ReservationConfirmed Type = "reservation.confirmed"
	ReservationCancelled Type = "reservation.cancelled"
	ReservationCompleted Type = "reservation.completed"
	ReservationExpired   Type = "reservation.expired"
	RefundDivergence     Type = "payment.refund_divergence"
	// CaptureUnknown marks a capture whose result never arrived; the gateway may have charged.
	CaptureUnknown Type = "payment.capture_unknown"
)

// Event is the envelope written to the broker.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New stamps an event with a fresh ID and the current time.
func New(t Type, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
