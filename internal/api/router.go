package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Log          *zap.Logger
	Env          string
	Version      string
	Dependencies []Dependency
}

func newBaseRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Dependencies...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	return r
}

// NewSchedulingRouter serves the booking saga.
func NewSchedulingRouter(cfg RouterConfig, svc AppointmentService) http.Handler {
	r := newBaseRouter(cfg)

	r.Post("/appointments", createAppointmentHandler(svc))
	r.Get("/appointments", listAppointmentsHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Patch("/appointments/{id}/status", updateAppointmentStatusHandler(svc))

	return r
}

// NewStaffingRouter serves the provider directory the saga discovers from.
func NewStaffingRouter(cfg RouterConfig, svc ProviderService) http.Handler {
	r := newBaseRouter(cfg)

	r.Get("/providers", listProvidersHandler(svc))
	r.Post("/providers", createProviderHandler(svc))
	r.Get("/providers/{id}", getProviderHandler(svc))
	r.Put("/providers/{id}", updateProviderHandler(svc))
	r.Patch("/providers/{id}/availability", setProviderAvailabilityHandler(svc))

	return r
}

func NewConsultationRouter(cfg RouterConfig, svc ConsultationService) http.Handler {
	r := newBaseRouter(cfg)

	r.Post("/consultations", createConsultationHandler(svc))
	r.Get("/consultations", listConsultationsHandler(svc))
	r.Get("/consultations/{id}", getConsultationHandler(svc))
	r.Patch("/consultations/{id}/notes", updateConsultationNotesHandler(svc))

	return r
}
