package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebook/hospital-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Store        scheduling.Store
	Booking      *scheduling.BookingService
	Cancellation *scheduling.CancellationService
	Completion   *scheduling.CompletionSequencer
	Availability *scheduling.AvailabilityChangeProcessor
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/appointments", createAppointmentHandler(cfg.Booking))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Store))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Cancellation))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Completion))

	r.Post("/schedule-changes/{id}/approve", approveScheduleChangeHandler(cfg.Availability))

	return r
}
