package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/roomstay/booking-service/internal/domain"
)

// Room is the denormalized room projection attached to booking listings.
type Room struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Rent       float64   `json:"rent"`
	Facilities []string  `json:"facilities"`
	Picture    string    `json:"picture"`
	Details    string    `json:"details"`
	Location   string    `json:"location"`
}

// User is the denormalized owner projection attached to booking listings.
type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Photo string    `json:"photo"`
}

// Catalog looks up rooms and users by id. Both are read-only collaborators;
// a missing document surfaces as domain.ErrNotFound.
type Catalog interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}

// CatalogCache keeps recently fetched catalog documents close to the
// service so list projections do not hammer the catalog store.
type CatalogCache interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// View is one booking enriched for listing. Room or User may be nil when
// the catalog no longer has the document.
type View struct {
	Booking domain.Booking `json:"booking"`
	Room    *Room          `json:"room,omitempty"`
	User    *User          `json:"user,omitempty"`
}
