package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/roomstay/booking-service/internal/domain"
	"github.com/roomstay/booking-service/internal/notify"
	"github.com/roomstay/booking-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Store is the reservation store the lifecycle manager writes through. The
// date-affecting writes (CreateBooking, UpdateBookingDates) must re-check
// the overlap predicate atomically with the write and return
// domain.ErrDateConflict when it fails; the detector's pre-check alone is
// never trusted.
type Store interface {
	RoomScanner
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	CreateBooking(ctx context.Context, b domain.Booking) error
	UpdateBookingDates(ctx context.Context, id uuid.UUID, start, end time.Time) (*domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error)
	ListBookings(ctx context.Context) ([]domain.Booking, error)
}

// Service owns the booking lifecycle: creation, date changes, approval and
// cancellation, plus the read projections.
type Service struct {
	store    Store
	detector *Detector
	catalog  Catalog
	cache    CatalogCache
	cacheTTL time.Duration
	notifier notify.Publisher
	logger   observability.Logger
}

func NewService(store Store, detector *Detector, catalog Catalog, cache CatalogCache, cacheTTL time.Duration, notifier notify.Publisher, logger observability.Logger) *Service {
	return &Service{
		store:    store,
		detector: detector,
		catalog:  catalog,
		cache:    cache,
		cacheTTL: cacheTTL,
		notifier: notifier,
		logger:   logger,
	}
}

// validateRange enforces a non-zero forward interval that does not start in
// the past. The past check is strict: start == now is accepted.
func validateRange(start, end, now time.Time) error {
	if !start.Before(end) {
		return errors.Wrap(domain.ErrInvalidRange, "end date must be after start date")
	}
	if start.Before(now) {
		return errors.Wrap(domain.ErrInvalidRange, "cannot book a room for past dates")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, userID, roomID uuid.UUID, start, end time.Time) (*domain.Booking, error) {
	if userID == uuid.Nil || roomID == uuid.Nil || start.IsZero() || end.IsZero() {
		return nil, errors.Wrap(domain.ErrValidation, "user id, room id, start date and end date are required")
	}
	if err := validateRange(start, end, time.Now()); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	conflict, err := s.detector.HasConflict(ctx, roomID, start, end, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if conflict {
		observability.DateConflictsTotal.Inc()
		return nil, domain.ErrDateConflict
	}

	b := domain.NewBooking(userID, roomID, start, end)
	if err := s.store.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, domain.ErrDateConflict) {
			observability.DateConflictsTotal.Inc()
		}
		return nil, err
	}
	return &b, nil
}

func (s *Service) Modify(ctx context.Context, bookingID uuid.UUID, start, end time.Time) (*domain.Booking, error) {
	if bookingID == uuid.Nil || start.IsZero() || end.IsZero() {
		return nil, errors.Wrap(domain.ErrValidation, "booking id, start date and end date are required")
	}
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := validateRange(start, end, time.Now()); err != nil {
		return nil, err
	}

	conflict, err := s.detector.HasConflict(ctx, b.RoomID, start, end, b.ID)
	if err != nil {
		return nil, err
	}
	if conflict {
		observability.DateConflictsTotal.Inc()
		return nil, domain.ErrDateConflict
	}

	updated, err := s.store.UpdateBookingDates(ctx, bookingID, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrDateConflict) {
			observability.DateConflictsTotal.Inc()
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) Approve(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	updated, err := s.store.UpdateBookingStatus(ctx, bookingID, domain.StatusApproved)
	if err != nil {
		return nil, err
	}
	s.notifyStatusChange(updated.UserID, "approved", updated.ID)
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	updated, err := s.store.UpdateBookingStatus(ctx, bookingID, domain.StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notifyStatusChange(updated.UserID, "cancelled", updated.ID)
	return updated, nil
}

// notifyStatusChange fires the realtime event off the request path. The
// status write has already committed; a failed publish is logged and
// dropped, never surfaced to the caller.
func (s *Service) notifyStatusChange(userID uuid.UUID, event string, bookingID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.notifier.Publish(ctx, userID, notify.Event{Event: event, BookingID: bookingID})
		if err != nil {
			observability.NotifyPublishFailures.Inc()
			s.logger.WithError(err).WithField("booking_id", bookingID).Warn("notification publish failed")
		}
	}()
}

// ListByUser returns the user's bookings newest first, enriched with room
// and owner details. An empty result is reported as ErrNoBookingsFound,
// matching the API's long-standing 404-on-empty behaviour.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]View, error) {
	if userID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrValidation, "user id is required")
	}
	bookings, err := s.store.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, domain.ErrNoBookingsFound
	}
	return s.enrich(ctx, bookings)
}

func (s *Service) ListAll(ctx context.Context) ([]View, error) {
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, domain.ErrNoBookingsFound
	}
	return s.enrich(ctx, bookings)
}

func (s *Service) enrich(ctx context.Context, bookings []domain.Booking) ([]View, error) {
	views := make([]View, len(bookings))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bookings {
		i, b := i, b
		g.Go(func() error {
			room, err := s.roomView(gctx, b.RoomID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			user, err := s.userView(gctx, b.UserID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			views[i] = View{Booking: b, Room: room, User: user}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) roomView(ctx context.Context, id uuid.UUID) (*Room, error) {
	key := "room:" + id.String()
	if s.cache != nil {
		var room Room
		if ok, err := s.cache.GetJSON(ctx, key, &room); err == nil && ok {
			return &room, nil
		}
	}
	room, err := s.catalog.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, room, s.cacheTTL); err != nil {
			s.logger.WithError(err).Debug("room cache write failed")
		}
	}
	return room, nil
}

func (s *Service) userView(ctx context.Context, id uuid.UUID) (*User, error) {
	key := "user:" + id.String()
	if s.cache != nil {
		var user User
		if ok, err := s.cache.GetJSON(ctx, key, &user); err == nil && ok {
			return &user, nil
		}
	}
	user, err := s.catalog.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, user, s.cacheTTL); err != nil {
			s.logger.WithError(err).Debug("user cache write failed")
		}
	}
	return user, nil
}
