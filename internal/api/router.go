package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/appointment"
	"github.com/hackgods/therapy-scheduling/internal/auth"
	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/link"
	"github.com/hackgods/therapy-scheduling/internal/message"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

type AvailabilityService interface {
	SetWeeklySchedule(ctx context.Context, caller access.Caller, inputs []availability.SlotInput) (int, error)
	GetWeeklySchedule(ctx context.Context, caller access.Caller, therapistID uuid.UUID) ([]availability.Slot, error)
	DeleteSlot(ctx context.Context, caller access.Caller, slotID uuid.UUID) error
}

type AppointmentService interface {
	RequestAppointment(ctx context.Context, caller access.Caller, therapistID uuid.UUID, at time.Time, reason string) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, caller access.Caller, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, caller access.Caller, f appointment.ListFilter) ([]appointment.Appointment, error)
	SetStatus(ctx context.Context, caller access.Caller, id uuid.UUID, to appointment.AppointmentStatus) (*appointment.Appointment, error)
	ProposeReschedule(ctx context.Context, caller access.Caller, id uuid.UUID, newTime time.Time) (*appointment.RescheduleRequest, error)
	ResolveReschedule(ctx context.Context, caller access.Caller, id uuid.UUID, accept bool) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, caller access.Caller, id uuid.UUID, newTime time.Time) (*appointment.Appointment, error)
	ListRescheduleRequests(ctx context.Context, caller access.Caller) ([]appointment.RescheduleRequest, error)
}

type LinkService interface {
	Link(ctx context.Context, caller access.Caller, therapistID uuid.UUID, clientEmail string) (*link.Link, error)
	ListClients(ctx context.Context, caller access.Caller) ([]user.User, error)
	TherapistOf(ctx context.Context, clientID uuid.UUID) (*user.User, error)
}

type MessageService interface {
	Send(ctx context.Context, caller access.Caller, receiverID uuid.UUID, text string) (*message.Message, error)
	Conversation(ctx context.Context, caller access.Caller, otherID uuid.UUID, limit int) ([]message.Message, error)
}

type RouterConfig struct {
	Availability AvailabilityService
	Appointments AppointmentService
	Links        LinkService
	Messages     MessageService

	Verifier *auth.Verifier
	Logger   *zap.Logger
	// Location resolves zone-less times in requests.
	Location *time.Location

	Postgres Pinger
	Redis    Pinger

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Only set it behind a proxy that overwrites those headers.
	TrustProxy bool

	Env     string
	Version string
}

type handlers struct {
	availability AvailabilityService
	appointments AppointmentService
	links        LinkService
	messages     MessageService
	logger       *zap.Logger
	loc          *time.Location
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	h := &handlers{
		availability: cfg.Availability,
		appointments: cfg.Appointments,
		links:        cfg.Links,
		messages:     cfg.Messages,
		logger:       logger,
		loc:          loc,
	}

	r := chi.NewRouter()

	// Apply middleware
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Use(Authenticate(cfg.Verifier))

		// Availability endpoints
		r.Post("/availability", h.setAvailability)
		r.Get("/availability/me", h.myAvailability)
		r.Get("/therapists/{id}/availability", h.therapistAvailability)
		r.Delete("/availability/{slotID}", h.deleteSlot)

		// Appointment endpoints
		r.Post("/appointments", h.createAppointment)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{id}", h.getAppointment)
		r.Post("/appointments/{id}/status", h.setStatus)
		r.Post("/appointments/{id}/approve", h.statusShortcut(appointment.StatusConfirmed))
		r.Post("/appointments/{id}/deny", h.statusShortcut(appointment.StatusCancelled))
		r.Post("/appointments/{id}/reschedule", h.reschedule)
		r.Post("/appointments/{id}/reschedule/resolve", h.resolveReschedule)
		r.Get("/reschedule-requests", h.listRescheduleRequests)

		// Links and messages
		r.Post("/links", h.createLink)
		r.Get("/links/clients", h.listClients)
		r.Get("/links/therapist", h.myTherapist)
		r.Post("/messages", h.sendMessage)
		r.Get("/messages/{userID}", h.conversation)
	})

	return r
}
