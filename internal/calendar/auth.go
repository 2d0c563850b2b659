package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/internal/vault"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Authenticator turns a stored connection into an authorized HTTP client,
// refreshing the access token when it has expired.
type Authenticator struct {
	configs    OAuthConfigSource
	vault      *vault.Vault
	store      connections.Store
	endpoints  map[connections.Provider]oauth2.Endpoint
	httpClient *http.Client
	logger     *logging.Logger
	now        func() time.Time
}

// AuthenticatorOptions configures an Authenticator.
type AuthenticatorOptions struct {
	Configs       OAuthConfigSource
	Vault         *vault.Vault
	Store         connections.Store
	OutlookTenant string
	// Endpoints overrides the provider OAuth endpoints (tests).
	Endpoints  map[connections.Provider]oauth2.Endpoint
	HTTPClient *http.Client
	Logger     *logging.Logger
}

func NewAuthenticator(opts AuthenticatorOptions) *Authenticator {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	endpoints := map[connections.Provider]oauth2.Endpoint{
		connections.ProviderGoogle:  Endpoint(connections.ProviderGoogle, ""),
		connections.ProviderOutlook: Endpoint(connections.ProviderOutlook, opts.OutlookTenant),
	}
	for p, ep := range opts.Endpoints {
		endpoints[p] = ep
	}
	return &Authenticator{
		configs:    opts.Configs,
		vault:      opts.Vault,
		store:      opts.Store,
		endpoints:  endpoints,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

func (a *Authenticator) oauthConfig(ctx context.Context, provider connections.Provider) (*oauth2.Config, error) {
	cfg, err := a.configs.Get(ctx, provider)
	if err != nil {
		return nil, err
	}
	if !cfg.Usable() {
		return nil, ErrProviderDisabled
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint:     a.endpoints[provider],
	}, nil
}

// oauthContext makes the oauth2 package use our bounded-timeout client.
func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// AuthURL builds the consent URL. The user id travels as the OAuth state.
// Offline access with forced consent guarantees a refresh token.
func (a *Authenticator) AuthURL(ctx context.Context, provider connections.Provider, userID string) (string, error) {
	cfg, err := a.oauthConfig(ctx, provider)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(userID, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for tokens. A missing refresh token is an error.
func (a *Authenticator) Exchange(ctx context.Context, provider connections.Provider, code string) (*oauth2.Token, error) {
	cfg, err := a.oauthConfig(ctx, provider)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return nil, providerErr(provider, "exchange code", err)
	}
	if tok.RefreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	return tok, nil
}

// ClientForToken wraps a freshly exchanged token, before any connection exists.
func (a *Authenticator) ClientForToken(ctx context.Context, tok *oauth2.Token) *http.Client {
	client := oauth2.NewClient(a.oauthContext(ctx), oauth2.StaticTokenSource(tok))
	client.Timeout = a.httpClient.Timeout
	return client
}

// Save persists the connection produced by a completed consent flow.
func (a *Authenticator) Save(ctx context.Context, conn *connections.Connection, tok *oauth2.Token) (*connections.Connection, error) {
	return a.vault.Seal(ctx, conn, vault.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
}

// Client returns an authorized client for (user, provider). When now >= expiry
// the refresh grant is used; if that fails the connection is deactivated and
// ErrReconnectRequired is returned.
func (a *Authenticator) Client(ctx context.Context, provider connections.Provider, userID string) (*http.Client, *connections.Connection, error) {
	conn, tokens, err := a.vault.Get(ctx, userID, provider)
	if errors.Is(err, connections.ErrNotFound) {
		return nil, nil, ErrNotConnected
	}
	if err != nil {
		return nil, nil, fmt.Errorf("calendar: load connection: %w", err)
	}
	if !conn.IsActive {
		return nil, nil, ErrReconnectRequired
	}

	tok := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
		TokenType:    "Bearer",
	}
	if !a.now().Before(tokens.Expiry) {
		refreshed, err := a.refresh(ctx, conn, tokens.RefreshToken)
		if err != nil {
			return nil, nil, err
		}
		tok = refreshed
	}
	return a.ClientForToken(ctx, tok), conn, nil
}

func (a *Authenticator) refresh(ctx context.Context, conn *connections.Connection, refreshToken string) (*oauth2.Token, error) {
	log := a.logger.ForUser(conn.UserID).With("provider", conn.Provider.Slug())

	cfg, err := a.oauthConfig(ctx, conn.Provider)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		log.Warn("calendar token refresh failed, deactivating connection", "error", err)
		if derr := a.store.Deactivate(ctx, conn.UserID, conn.Provider); derr != nil {
			log.Error("failed to deactivate calendar connection", "error", derr)
		}
		return nil, fmt.Errorf("%w: %v", ErrReconnectRequired, err)
	}

	if err := a.vault.UpdateAccessToken(ctx, conn.UserID, conn.Provider, tok.AccessToken, tok.Expiry); err != nil {
		return nil, fmt.Errorf("calendar: persist refreshed token: %w", err)
	}
	log.Info("calendar access token refreshed", "expires_at", tok.Expiry)
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}
