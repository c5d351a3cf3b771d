package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medibook/appointment-portal/internal/auth"
	"github.com/medibook/appointment-portal/internal/booking"
	"github.com/medibook/appointment-portal/internal/directory"
)

type RouterConfig struct {
	Booking   *booking.Service
	Auth      *auth.Service
	Directory directory.Repository
	Sessions  auth.SessionStore
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Session endpoints
	r.Post("/auth/login", loginHandler(cfg.Auth))
	r.Post("/auth/logout", logoutHandler(cfg.Auth))

	// Everything below requires a live session.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Sessions))

		r.Get("/doctors", searchDoctorsHandler(cfg.Directory))
		r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Booking))

		r.Post("/appointments", createAppointmentHandler(cfg.Booking))
		r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
		r.Get("/appointments/{id}/events", listAppointmentEventsHandler(cfg.Booking))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Booking))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Booking))

		// Admin review pages
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/agents", listAgentsHandler(cfg.Auth))
			r.Get("/payments", listPaymentsHandler(cfg.Booking))
		})
	})

	return r
}
