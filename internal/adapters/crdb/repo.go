package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roomstay/booking-service/internal/domain"
	"github.com/roomstay/booking-service/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx so overlap and
// lookup queries can run against the pool or inside a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Mark(err, domain.ErrStoreUnavailable)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return txError(err)
	}
	return txError(tx.Commit(ctx))
}

// txError maps retryable serialization conflicts (code 40001) onto
// domain.ErrSerializationFailure. CockroachDB can raise 40001 from any
// statement or from the commit itself, so both paths go through here.
func txError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return domain.ErrSerializationFailure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(err, domain.ErrStoreUnavailable)
	}
	return err
}

// hasOverlap reports whether any non-cancelled booking for the room
// intersects the half-open range [start, end). A non-zero exclude id is
// left out of the scan so a modification does not collide with itself.
func hasOverlap(ctx context.Context, q rowQuerier, roomID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var found bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE room_id = $1
			  AND status <> 'cancelled'
			  AND id <> $2
			  AND start_date < $4
			  AND end_date > $3
		)
	`, roomID, exclude, start, end).Scan(&found)
	if err != nil {
		return false, errors.Mark(err, domain.ErrStoreUnavailable)
	}
	return found, nil
}

// CreateBooking inserts the booking and its booking.created outbox record.
// The overlap predicate is re-evaluated inside the serializable transaction
// so two concurrent creates for the same room cannot both pass the check.
func (r *Repository) CreateBooking(ctx context.Context, b domain.Booking) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		conflict, err := hasOverlap(ctx, tx, b.RoomID, b.StartDate, b.EndDate, uuid.Nil)
		if err != nil {
			return err
		}
		if conflict {
			return domain.ErrDateConflict
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO bookings (id, user_id, room_id, start_date, end_date, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, b.ID, b.UserID, b.RoomID, b.StartDate, b.EndDate, b.Status, b.CreatedAt)
		if err != nil {
			return err
		}
		return r.insertBookingEvent(ctx, tx, b, "booking.created")
	})
}

// UpdateBookingDates moves a booking to a new range, re-checking overlap in
// the same transaction with the booking's own row excluded. Status is left
// untouched.
func (r *Repository) UpdateBookingDates(ctx context.Context, id uuid.UUID, start, end time.Time) (*domain.Booking, error) {
	var updated *domain.Booking
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		conflict, err := hasOverlap(ctx, tx, b.RoomID, start, end, id)
		if err != nil {
			return err
		}
		if conflict {
			return domain.ErrDateConflict
		}
		_, err = tx.Exec(ctx, `
			UPDATE bookings SET start_date = $2, end_date = $3 WHERE id = $1
		`, id, start, end)
		if err != nil {
			return err
		}
		b.StartDate = start
		b.EndDate = end
		updated = b
		return nil
	})
	return updated, err
}

// UpdateBookingStatus transitions a booking and records the matching
// booking.<status> outbox event. Re-applying the current status fails with
// the no-op error for that status.
func (r *Repository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Booking, error) {
	var updated *domain.Booking
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Status == status {
			if status == domain.StatusApproved {
				return domain.ErrAlreadyApproved
			}
			return domain.ErrAlreadyCancelled
		}
		_, err = tx.Exec(ctx, `
			UPDATE bookings SET status = $2 WHERE id = $1
		`, id, status)
		if err != nil {
			return err
		}
		b.Status = status
		if err := r.insertBookingEvent(ctx, tx, *b, "booking."+string(status)); err != nil {
			return err
		}
		updated = b
		return nil
	})
	return updated, err
}

func (r *Repository) insertBookingEvent(ctx context.Context, tx pgx.Tx, b domain.Booking, eventType string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"booking_id": b.ID,
		"user_id":    b.UserID,
		"room_id":    b.RoomID,
		"status":     b.Status,
	})
	if err != nil {
		return err
	}
	return r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     uuid.New().String(),
	})
}

func getBooking(ctx context.Context, q rowQuerier, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	err := q.QueryRow(ctx, `
		SELECT id, user_id, room_id, start_date, end_date, status, created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.UserID, &b.RoomID, &b.StartDate, &b.EndDate, &b.Status, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Mark(err, domain.ErrStoreUnavailable)
	}
	return &b, nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return getBooking(ctx, r.pool, id)
}

func (r *Repository) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	return r.listBookings(ctx, `
		SELECT id, user_id, room_id, start_date, end_date, status, created_at
		FROM bookings WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

// ListActiveBookingsByRoom feeds the conflict detector: every booking for
// the room that still blocks the calendar.
func (r *Repository) ListActiveBookingsByRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Booking, error) {
	return r.listBookings(ctx, `
		SELECT id, user_id, room_id, start_date, end_date, status, created_at
		FROM bookings WHERE room_id = $1 AND status <> 'cancelled'
	`, roomID)
}

func (r *Repository) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	return r.listBookings(ctx, `
		SELECT id, user_id, room_id, start_date, end_date, status, created_at
		FROM bookings ORDER BY created_at DESC
	`)
}

func (r *Repository) listBookings(ctx context.Context, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Mark(err, domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.RoomID, &b.StartDate, &b.EndDate, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
