package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redisadapter "github.com/roomstay/booking-service/internal/adapters/redis"
	"github.com/roomstay/booking-service/internal/booking"
	"github.com/roomstay/booking-service/internal/domain"
	"github.com/roomstay/booking-service/internal/idempotency"
)

type Handlers struct {
	bookings *booking.Service
	notifier *redisadapter.Notifier
	idemp    *idempotency.Idempotency
}

func NewHandlers(bookings *booking.Service, notifier *redisadapter.Notifier, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		bookings: bookings,
		notifier: notifier,
		idemp:    idemp,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "error"
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrDateConflict),
		errors.Is(err, domain.ErrAlreadyApproved),
		errors.Is(err, domain.ErrAlreadyCancelled):
		status = http.StatusBadRequest
		kind = "fail"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoBookingsFound):
		status = http.StatusNotFound
		kind = "fail"
	case errors.Is(err, domain.ErrSerializationFailure):
		status = http.StatusConflict
		kind = "fail"
	}
	writeJSON(w, status, map[string]interface{}{"status": kind, "message": err.Error()})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		UserID    uuid.UUID `json:"userId"`
		RoomID    uuid.UUID `json:"roomId"`
		StartDate time.Time `json:"startDate"`
		EndDate   time.Time `json:"endDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, err.Error()))
		return
	}

	b, err := h.bookings.Create(r.Context(), req.UserID, req.RoomID, req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Booking created successfully",
		"data":    map[string]interface{}{"booking": b},
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ModifyBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, "invalid booking id"))
		return
	}

	var req struct {
		StartDate time.Time `json:"startDate"`
		EndDate   time.Time `json:"endDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, err.Error()))
		return
	}

	b, err := h.bookings.Modify(r.Context(), id, req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Booking updated successfully",
		"booking": b,
	})
}

func (h *Handlers) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, "invalid booking id"))
		return
	}
	b, err := h.bookings.Approve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Booking approved successfully",
		"booking": b,
	})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, "invalid booking id"))
		return
	}
	b, err := h.bookings.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Booking cancelled successfully",
		"booking": b,
	})
}

func (h *Handlers) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, "invalid user id"))
		return
	}
	views, err := h.bookings.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"count":    len(views),
		"bookings": views,
	})
}

func (h *Handlers) ListAllBookings(w http.ResponseWriter, r *http.Request) {
	views, err := h.bookings.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"count":    len(views),
		"bookings": views,
	})
}

// StreamNotifications holds an SSE stream open for one user and forwards
// every event published to that user's channel while the client is
// connected. Events published while nobody listens are gone; there is no
// replay.
func (h *Handlers) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, errors.Wrap(domain.ErrValidation, "invalid user id"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.notifier.Subscribe(r.Context(), userID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		}
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
