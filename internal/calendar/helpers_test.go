package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/vault"
)

type staticConfigs map[connections.Provider]*OAuthConfig

func (s staticConfigs) Get(_ context.Context, p connections.Provider) (*OAuthConfig, error) {
	cfg, ok := s[p]
	if !ok {
		return nil, ErrProviderDisabled
	}
	cp := *cfg
	return &cp, nil
}

func testConfigs() staticConfigs {
	return staticConfigs{
		connections.ProviderGoogle: {
			Provider: connections.ProviderGoogle, ClientID: "g-id", ClientSecret: "g-secret",
			RedirectURI: "https://api.example.com/integrations/calendar/google/callback", Enabled: true,
			Scopes: DefaultScopes[connections.ProviderGoogle],
		},
		connections.ProviderOutlook: {
			Provider: connections.ProviderOutlook, ClientID: "o-id", ClientSecret: "o-secret",
			RedirectURI: "https://api.example.com/integrations/calendar/outlook/callback", Enabled: true,
			Scopes: DefaultScopes[connections.ProviderOutlook],
		},
	}
}

// tokenServer fakes an OAuth token endpoint. status != 200 simulates a revoked grant.
type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	status int
	resp   map[string]any
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		status: http.StatusOK,
		resp: map[string]any{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		},
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		if ts.status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(ts.resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

type authFixture struct {
	auth   *Authenticator
	store  *connections.MemoryStore
	vault  *vault.Vault
	tokens *tokenServer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	cipher, err := vault.NewCipher("calendar-test-key")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	store := connections.NewMemoryStore()
	v := vault.New(store, cipher)
	tokens := newTokenServer(t)
	endpoint := oauth2.Endpoint{
		AuthURL:   tokens.URL + "/authorize",
		TokenURL:  tokens.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	auth := NewAuthenticator(AuthenticatorOptions{
		Configs: testConfigs(),
		Vault:   v,
		Store:   store,
		Endpoints: map[connections.Provider]oauth2.Endpoint{
			connections.ProviderGoogle:  endpoint,
			connections.ProviderOutlook: endpoint,
		},
	})
	return &authFixture{auth: auth, store: store, vault: v, tokens: tokens}
}

// connect stores a connection whose access token is valid for another hour.
func (f *authFixture) connect(t *testing.T, userID string, provider connections.Provider, expiry time.Time) {
	t.Helper()
	_, err := f.vault.Seal(context.Background(), &connections.Connection{
		UserID:   userID,
		Provider: provider,
	}, vault.Tokens{AccessToken: "stored-access", RefreshToken: "stored-refresh", Expiry: expiry})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
}
