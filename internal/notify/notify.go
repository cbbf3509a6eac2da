package notify

import (
	"context"

	"github.com/google/uuid"
)

// Event is the payload pushed to a booking owner when the booking's status
// changes.
type Event struct {
	Event     string    `json:"event"`
	BookingID uuid.UUID `json:"bookingId"`
}

// Publisher delivers an event to the channel of a single user. Delivery is
// at-most-once and best-effort: nothing is persisted and nothing is retried,
// and an event published while no client is subscribed is dropped.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event Event) error
}
