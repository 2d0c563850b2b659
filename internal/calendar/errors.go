package calendar

import (
	"errors"
	"fmt"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

var (
	// ErrNotConnected means the user has no calendar connection for the provider.
	ErrNotConnected = errors.New("calendar: not connected")
	// ErrReconnectRequired means the stored grant is unusable and the user must re-authorize.
	ErrReconnectRequired = errors.New("calendar: reconnect required")
	// ErrProviderDisabled means no usable OAuth client configuration exists for the provider.
	ErrProviderDisabled = errors.New("calendar: provider disabled or not configured")
	// ErrMissingRefreshToken is returned when the consent flow did not yield a refresh token.
	ErrMissingRefreshToken = errors.New("calendar: provider did not return a refresh token")
)

// ProviderError wraps a failed remote call with the provider and operation.
type ProviderError struct {
	Provider connections.Provider
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("calendar: %s %s: %v", e.Provider.Slug(), e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(provider connections.Provider, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrReconnectRequired) || errors.Is(err, ErrProviderDisabled) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
