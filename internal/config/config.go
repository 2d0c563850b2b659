package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
	FrontendURL   string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// TokenEncryptionKey is the passphrase the token vault derives its AES key from.
	TokenEncryptionKey string
	JWTSecret          string
	CORSAllowedOrigins []string

	// Calendar provider OAuth apps. Values here seed the admin-managed
	// OAuth config when nothing has been stored in Redis yet.
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURI   string
	OutlookClientID     string
	OutlookClientSecret string
	OutlookRedirectURI  string
	OutlookTenant       string
	CalendarHTTPTimeout time.Duration

	// Voice webhook datetime handling
	VoiceAssumeLocalTime bool
	VoiceDefaultTimezone string
	WebhookRateLimitRPS  float64
	WebhookRateBurst     int
	// VoiceWebhookSecret must match the x-vapi-secret header when set.
	VoiceWebhookSecret   string

	// Reconciliation worker
	SyncInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:   getEnv("GOOGLE_REDIRECT_URI", ""),
		OutlookClientID:     getEnv("OUTLOOK_CLIENT_ID", ""),
		OutlookClientSecret: getEnv("OUTLOOK_CLIENT_SECRET", ""),
		OutlookRedirectURI:  getEnv("OUTLOOK_REDIRECT_URI", ""),
		OutlookTenant:       getEnv("OUTLOOK_TENANT", "common"),
		CalendarHTTPTimeout: getEnvAsDuration("CALENDAR_HTTP_TIMEOUT", 10*time.Second),

		VoiceAssumeLocalTime: getEnvAsBool("VOICE_ASSUME_LOCAL_TIME", true),
		VoiceDefaultTimezone: getEnv("VOICE_DEFAULT_TIMEZONE", "Australia/Sydney"),
		WebhookRateLimitRPS:  getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 20),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 40),
		VoiceWebhookSecret:   getEnv("VOICE_WEBHOOK_SECRET", ""),

		SyncInterval: getEnvAsDuration("SYNC_INTERVAL", 15*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
