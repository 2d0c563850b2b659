// Package connections tracks which calendar providers each tenant user has linked.
package connections

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the user has no connection for a provider.
	ErrNotFound = errors.New("calendar connection not found")
	// ErrUnknownProvider is returned for provider names other than google/outlook.
	ErrUnknownProvider = errors.New("unknown calendar provider")
)

// Provider identifies an external calendar service.
type Provider string

const (
	ProviderGoogle  Provider = "GOOGLE"
	ProviderOutlook Provider = "OUTLOOK"
)

// Precedence is the order in which a user's connections are considered when
// exactly one calendar has to be chosen: Google first, then Outlook.
var Precedence = []Provider{ProviderGoogle, ProviderOutlook}

// ParseProvider accepts route slugs ("google", "outlook") as well as the stored enum values.
func ParseProvider(raw string) (Provider, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "GOOGLE":
		return ProviderGoogle, nil
	case "OUTLOOK", "MICROSOFT":
		return ProviderOutlook, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// Slug is the lowercase form used in URLs and redirect query params.
func (p Provider) Slug() string {
	return strings.ToLower(string(p))
}

// DisplayName is the human name used in cancellation reasons and spoken replies.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google Calendar"
	case ProviderOutlook:
		return "Outlook Calendar"
	default:
		return string(p)
	}
}

// Connection is one (user, provider) calendar link. Token fields hold
// ciphertext produced by the token vault, never plaintext.
type Connection struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     Provider   `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  time.Time  `json:"token_expiry"`
	CalendarID   string     `json:"calendar_id"`
	CalendarName string     `json:"calendar_name"`
	AccountEmail string     `json:"account_email"`
	IsActive     bool       `json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CalendarIDOrPrimary returns the stored calendar id, defaulting to "primary".
func (c *Connection) CalendarIDOrPrimary() string {
	if c == nil || strings.TrimSpace(c.CalendarID) == "" {
		return "primary"
	}
	return c.CalendarID
}
