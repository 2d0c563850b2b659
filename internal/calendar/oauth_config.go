package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// OAuthConfig is the OAuth client registration for one provider, shared by all tenants.
type OAuthConfig struct {
	Provider     connections.Provider `json:"provider"`
	ClientID     string               `json:"client_id"`
	ClientSecret string               `json:"client_secret,omitempty"`
	RedirectURI  string               `json:"redirect_uri"`
	Scopes       []string             `json:"scopes"`
	Enabled      bool                 `json:"enabled"`
}

// Usable reports whether the config can drive an OAuth flow.
func (c *OAuthConfig) Usable() bool {
	return c != nil && c.Enabled && c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// Redacted returns a copy safe to return over the API.
func (c OAuthConfig) Redacted() OAuthConfig {
	if c.ClientSecret != "" {
		c.ClientSecret = "********"
	}
	return c
}

// DefaultScopes are requested when a config does not name its own.
var DefaultScopes = map[connections.Provider][]string{
	connections.ProviderGoogle: {
		"https://www.googleapis.com/auth/calendar",
		"https://www.googleapis.com/auth/userinfo.email",
	},
	connections.ProviderOutlook: {
		"offline_access",
		"User.Read",
		"Calendars.ReadWrite",
	},
}

// Endpoint returns the OAuth endpoint for a provider. tenant is only used by Outlook.
func Endpoint(provider connections.Provider, tenant string) oauth2.Endpoint {
	if provider == connections.ProviderOutlook {
		if strings.TrimSpace(tenant) == "" {
			tenant = "common"
		}
		return microsoft.AzureADEndpoint(tenant)
	}
	return google.Endpoint
}

// OAuthConfigSource resolves the active OAuth client config for a provider.
type OAuthConfigSource interface {
	Get(ctx context.Context, provider connections.Provider) (*OAuthConfig, error)
}

// SecretCipher protects client secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(serialized string) (string, error)
}

// OAuthConfigStore keeps admin-managed OAuth configs in Redis and falls back
// to the environment-provided defaults when no document exists.
type OAuthConfigStore struct {
	redis    *redis.Client
	cipher   SecretCipher
	defaults map[connections.Provider]OAuthConfig
}

func NewOAuthConfigStore(redisClient *redis.Client, cipher SecretCipher, defaults ...OAuthConfig) *OAuthConfigStore {
	s := &OAuthConfigStore{
		redis:    redisClient,
		cipher:   cipher,
		defaults: make(map[connections.Provider]OAuthConfig, len(defaults)),
	}
	for _, cfg := range defaults {
		s.defaults[cfg.Provider] = cfg
	}
	return s
}

func (s *OAuthConfigStore) key(provider connections.Provider) string {
	return fmt.Sprintf("calendar:oauth-config:%s", provider.Slug())
}

// Get returns the stored config with its secret decrypted, or the default.
func (s *OAuthConfigStore) Get(ctx context.Context, provider connections.Provider) (*OAuthConfig, error) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, s.key(provider)).Bytes()
		switch {
		case err == nil:
			var cfg OAuthConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("calendar: unmarshal oauth config: %w", err)
			}
			if cfg.ClientSecret != "" {
				secret, err := s.cipher.Decrypt(cfg.ClientSecret)
				if err != nil {
					return nil, fmt.Errorf("calendar: decrypt client secret: %w", err)
				}
				cfg.ClientSecret = secret
			}
			cfg.Provider = provider
			return withDefaultScopes(&cfg), nil
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("calendar: get oauth config: %w", err)
		}
	}

	cfg, ok := s.defaults[provider]
	if !ok {
		return nil, ErrProviderDisabled
	}
	return withDefaultScopes(&cfg), nil
}

// Set stores the config, encrypting the client secret. An empty secret keeps
// the currently stored one.
func (s *OAuthConfigStore) Set(ctx context.Context, cfg OAuthConfig) error {
	if s.redis == nil {
		return errors.New("calendar: oauth config store has no redis client")
	}
	if cfg.ClientSecret == "" {
		current, err := s.Get(ctx, cfg.Provider)
		if err != nil && !errors.Is(err, ErrProviderDisabled) {
			return err
		}
		if current != nil {
			cfg.ClientSecret = current.ClientSecret
		}
	}
	if cfg.ClientSecret != "" {
		enc, err := s.cipher.Encrypt(cfg.ClientSecret)
		if err != nil {
			return fmt.Errorf("calendar: encrypt client secret: %w", err)
		}
		cfg.ClientSecret = enc
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("calendar: marshal oauth config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.Provider), data, 0).Err(); err != nil {
		return fmt.Errorf("calendar: set oauth config: %w", err)
	}
	return nil
}

func withDefaultScopes(cfg *OAuthConfig) *OAuthConfig {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), DefaultScopes[cfg.Provider]...)
	}
	return cfg
}
