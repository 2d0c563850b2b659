package bootstrap

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/voice-booking-platform/internal/appointments"
	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	appconfig "github.com/wolfman30/voice-booking-platform/internal/config"
	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/voice-booking-platform/internal/reconcile"
	"github.com/wolfman30/voice-booking-platform/internal/vault"
	"github.com/wolfman30/voice-booking-platform/internal/voice"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Scheduling bundles the services shared by the API and the sync worker.
type Scheduling struct {
	Connections  connections.Store
	OAuthConfigs *calendar.OAuthConfigStore
	Registry     *calendar.Registry
	Appointments *appointments.Service
	Sync         *reconcile.Engine
	// Replay is nil without Redis.
	Replay       *voice.RedisReplayStore
}

// BuildScheduling wires the appointment ledger, the calendar adapters and the
// reconciliation engine. A nil pool selects in-memory repositories.
func BuildScheduling(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, m *metrics.SchedulingMetrics, logger *logging.Logger) (*Scheduling, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cipher, err := vault.NewCipher(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: token cipher: %w", err)
	}

	var (
		connStore connections.Store
		apptRepo  appointments.Repository
	)
	if pool != nil {
		connStore = connections.NewPostgresStore(pool)
		apptRepo = appointments.NewPostgresRepository(pool)
	} else {
		logger.Warn("no database configured; using in-memory stores")
		connStore = connections.NewMemoryStore()
		apptRepo = appointments.NewMemoryRepository()
	}

	configs := calendar.NewOAuthConfigStore(redisClient, cipher, defaultOAuthConfigs(cfg)...)
	auth := calendar.NewAuthenticator(calendar.AuthenticatorOptions{
		Configs:       configs,
		Vault:         vault.New(connStore, cipher),
		Store:         connStore,
		OutlookTenant: cfg.OutlookTenant,
		HTTPClient:    &http.Client{Timeout: cfg.CalendarHTTPTimeout},
		Logger:        logger,
	})
	registry := calendar.NewRegistry(connStore,
		calendar.NewGoogleAdapter(auth, "", logger),
		calendar.NewOutlookAdapter(auth, "", logger),
	)

	ledger := appointments.NewService(apptRepo, registry, m, logger)
	s := &Scheduling{
		Connections:  connStore,
		OAuthConfigs: configs,
		Registry:     registry,
		Appointments: ledger,
		Sync:         reconcile.NewEngine(ledger, registry, connStore, m, logger),
	}
	if redisClient != nil {
		s.Replay = voice.NewRedisReplayStore(redisClient, 0)
	}
	return s, nil
}

// BuildVoiceRouter wires the function-call router over the scheduling services.
func BuildVoiceRouter(cfg *appconfig.Config, s *Scheduling, m *metrics.SchedulingMetrics, logger *logging.Logger) (*voice.Router, error) {
	if cfg == nil || s == nil {
		return nil, fmt.Errorf("bootstrap: config and scheduling are required")
	}
	return voice.NewRouter(voice.RouterConfig{
		Ledger:          s.Appointments,
		Calendars:       s.Registry,
		Metrics:         m,
		Logger:          logger,
		Timezone:        cfg.VoiceDefaultTimezone,
		AssumeLocalTime: cfg.VoiceAssumeLocalTime,
	})
}

// defaultOAuthConfigs seeds provider OAuth apps from the environment. Redirect
// URIs default to the public callback route.
func defaultOAuthConfigs(cfg *appconfig.Config) []calendar.OAuthConfig {
	callback := func(provider connections.Provider, explicit string) string {
		if explicit != "" || cfg.PublicBaseURL == "" {
			return explicit
		}
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/integrations/calendar/" + provider.Slug() + "/callback"
	}
	var out []calendar.OAuthConfig
	if cfg.GoogleClientID != "" {
		out = append(out, calendar.OAuthConfig{
			Provider:     connections.ProviderGoogle,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  callback(connections.ProviderGoogle, cfg.GoogleRedirectURI),
			Enabled:      true,
		})
	}
	if cfg.OutlookClientID != "" {
		out = append(out, calendar.OAuthConfig{
			Provider:     connections.ProviderOutlook,
			ClientID:     cfg.OutlookClientID,
			ClientSecret: cfg.OutlookClientSecret,
			RedirectURI:  callback(connections.ProviderOutlook, cfg.OutlookRedirectURI),
			Enabled:      true,
		})
	}
	return out
}

// CloseAll releases the pool and Redis client; both may be nil.
func CloseAll(pool *pgxpool.Pool, redisClient *redis.Client) {
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
