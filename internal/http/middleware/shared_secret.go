package middleware

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// VapiSecretHeader carries the server secret configured on the voice assistant.
const VapiSecretHeader = "X-Vapi-Secret"

// SharedSecret rejects requests whose header does not carry secret.
func SharedSecret(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(header))
			if provided == "" || !hmac.Equal([]byte(provided), []byte(secret)) {
				writeAuthError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
