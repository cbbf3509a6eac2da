package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roomstay/booking-service/internal/idempotency"
	"github.com/roomstay/booking-service/internal/observability"
	"github.com/roomstay/booking-service/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware(idemp))

	r.Post("/v1/bookings", h.CreateBooking)
	r.Put("/v1/bookings/{id}", h.ModifyBooking)
	r.Patch("/v1/bookings/{id}/approve", h.ApproveBooking)
	r.Patch("/v1/bookings/{id}/cancel", h.CancelBooking)
	r.Get("/v1/bookings/user/{userId}", h.ListUserBookings)
	r.Get("/v1/bookings", h.ListAllBookings)
	r.Get("/v1/notifications/{userId}/stream", h.StreamNotifications)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
