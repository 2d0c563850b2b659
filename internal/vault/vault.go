package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

// Tokens is a decrypted view of a connection's credentials.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Vault reads and writes connection tokens, encrypting on the way in and
// decrypting on the way out. Callers never see ciphertext.
type Vault struct {
	store  connections.Store
	cipher *Cipher
}

func New(store connections.Store, c *Cipher) *Vault {
	return &Vault{store: store, cipher: c}
}

// Seal stores a new connection (or replaces the existing one) with encrypted tokens.
func (v *Vault) Seal(ctx context.Context, conn *connections.Connection, tokens Tokens) (*connections.Connection, error) {
	access, err := v.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := v.cipher.Encrypt(tokens.RefreshToken)
	if err != nil {
		return nil, err
	}
	record := *conn
	record.AccessToken = access
	record.RefreshToken = refresh
	record.TokenExpiry = tokens.Expiry
	return v.store.Upsert(ctx, &record)
}

// Open decrypts the tokens of an already loaded connection.
func (v *Vault) Open(conn *connections.Connection) (Tokens, error) {
	access, err := v.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("access token: %w", err)
	}
	refresh, err := v.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh token: %w", err)
	}
	return Tokens{AccessToken: access, RefreshToken: refresh, Expiry: conn.TokenExpiry}, nil
}

// Get loads and decrypts the tokens for (user, provider).
func (v *Vault) Get(ctx context.Context, userID string, provider connections.Provider) (*connections.Connection, Tokens, error) {
	conn, err := v.store.Get(ctx, userID, provider)
	if err != nil {
		return nil, Tokens{}, err
	}
	tokens, err := v.Open(conn)
	if err != nil {
		return nil, Tokens{}, err
	}
	return conn, tokens, nil
}

// UpdateAccessToken persists a refreshed access token and its expiry.
func (v *Vault) UpdateAccessToken(ctx context.Context, userID string, provider connections.Provider, accessToken string, expiry time.Time) error {
	enc, err := v.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	return v.store.UpdateAccessToken(ctx, userID, provider, enc, expiry)
}
