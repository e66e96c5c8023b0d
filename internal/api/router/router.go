package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/citaplan/internal/booking"
	"github.com/example/citaplan/internal/channels/whatsapp"
	httpmiddleware "github.com/example/citaplan/internal/http/middleware"
	"github.com/example/citaplan/internal/leads"
	"github.com/example/citaplan/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	BookingHandler  *booking.Handler
	LeadsHandler    *leads.Handler
	WhatsAppAdapter *whatsapp.Adapter
	MetricsHandler  http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.BookingHandler != nil {
			public.Route("/api/citas", func(r chi.Router) {
				r.Post("/", cfg.BookingHandler.CreateAppointment)
				r.Post("/disponibilidad", cfg.BookingHandler.CheckAvailability)
			})
		}
		if cfg.WhatsAppAdapter != nil {
			public.Route("/webhooks/whatsapp", func(r chi.Router) {
				r.Get("/", cfg.WhatsAppAdapter.HandleVerification)
				r.Post("/", cfg.WhatsAppAdapter.HandleWebhook)
			})
		}
	})

	// Admin endpoints behind JWT auth
	r.Group(func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.LeadsHandler != nil {
			admin.Route("/admin/negocios/{businessID}", func(r chi.Router) {
				r.Use(httpmiddleware.RequireBusinessID)
				r.Get("/leads", cfg.LeadsHandler.ListLeads)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
