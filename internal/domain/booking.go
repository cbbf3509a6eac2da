package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
)

type Booking struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	RoomID    uuid.UUID `json:"roomId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewBooking(userID, roomID uuid.UUID, start, end time.Time) Booking {
	return Booking{
		ID:        uuid.New(),
		UserID:    userID,
		RoomID:    roomID,
		StartDate: start,
		EndDate:   end,
		Status:    StatusBooked,
		CreatedAt: time.Now(),
	}
}

// Overlaps reports whether the half-open ranges [a,b) and [c,d) intersect.
// Ranges that only touch at an endpoint do not overlap.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}
