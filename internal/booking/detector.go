package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/roomstay/booking-service/internal/domain"
)

// RoomScanner is the read-side of the reservation store the detector needs:
// every booking for a room that still counts against availability, i.e.
// everything not cancelled.
type RoomScanner interface {
	ListActiveBookingsByRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Booking, error)
}

// Detector decides whether a candidate date range collides with an existing
// booking. It is a pure read; the store-level re-check inside the write
// transaction is what makes the final insert safe under concurrency.
type Detector struct {
	store RoomScanner
}

func NewDetector(store RoomScanner) *Detector {
	return &Detector{store: store}
}

// HasConflict reports whether any non-cancelled booking for roomID overlaps
// [start, end). The caller guarantees start < end. A non-zero exclude id is
// skipped so a modification never collides with its own prior record.
func (d *Detector) HasConflict(ctx context.Context, roomID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	bookings, err := d.store.ListActiveBookingsByRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.ID == exclude {
			continue
		}
		if domain.Overlaps(b.StartDate, b.EndDate, start, end) {
			return true, nil
		}
	}
	return false, nil
}
