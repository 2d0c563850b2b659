package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/voice-booking-platform/internal/appointments"
	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	httpmiddleware "github.com/wolfman30/voice-booking-platform/internal/http/middleware"
	"github.com/wolfman30/voice-booking-platform/internal/reconcile"
	"github.com/wolfman30/voice-booking-platform/internal/voice"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	CalendarHandler     *calendar.Handler
	SyncHandler         *reconcile.Handler
	VoiceHandler        *voice.Handler
	MetricsHandler      http.Handler
	JWTSecret           string
	CORSAllowedOrigins  []string

	// Voice webhook throttling; zero disables it.
	WebhookRateLimitRPS float64
	WebhookRateBurst    int
	// VoiceWebhookSecret is the shared x-vapi-secret value; empty accepts any caller.
	VoiceWebhookSecret  string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints (health, metrics, voice webhook)
	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.VoiceHandler != nil {
		webhook := chi.Router(r)
		if cfg.WebhookRateLimitRPS > 0 {
			webhook = webhook.With(httpmiddleware.RateLimit(cfg.WebhookRateLimitRPS, cfg.WebhookRateBurst))
		}
		if cfg.VoiceWebhookSecret != "" {
			webhook = webhook.With(httpmiddleware.SharedSecret(httpmiddleware.VapiSecretHeader, cfg.VoiceWebhookSecret))
		}
		webhook.Post("/vapi/webhooks/calendar/function-call", cfg.VoiceHandler.HandleFunctionCall)
	}

	tenantAuth := httpmiddleware.TenantJWT(cfg.JWTSecret)

	if cfg.AppointmentsHandler != nil || cfg.SyncHandler != nil {
		r.Route("/appointments", func(appts chi.Router) {
			appts.Use(tenantAuth)
			// Registered before the mount so "sync" is never read as an id.
			if cfg.SyncHandler != nil {
				appts.Post("/sync", cfg.SyncHandler.HandleSync)
			}
			if cfg.AppointmentsHandler != nil {
				appts.Mount("/", cfg.AppointmentsHandler.Routes())
			}
		})
	}

	if cfg.CalendarHandler != nil {
		r.Route("/integrations/calendar", func(cal chi.Router) {
			// The provider redirects the browser here without a token; state carries the user.
			cal.Get("/{provider}/callback", cfg.CalendarHandler.HandleCallback)

			cal.Group(func(authed chi.Router) {
				authed.Use(tenantAuth)
				authed.Get("/connections/status/all", cfg.CalendarHandler.HandleStatusAll)
				authed.Get("/connections/{provider}", cfg.CalendarHandler.HandleGetConnection)
				authed.Delete("/connections/{provider}", cfg.CalendarHandler.HandleDisconnect)
				authed.Get("/{provider}/auth", cfg.CalendarHandler.HandleAuth)

				authed.With(httpmiddleware.RequireAdmin).Get("/admin/oauth-config/{provider}", cfg.CalendarHandler.HandleGetOAuthConfig)
				authed.With(httpmiddleware.RequireAdmin).Put("/admin/oauth-config/{provider}", cfg.CalendarHandler.HandlePutOAuthConfig)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
