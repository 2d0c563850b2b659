package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/voice-booking-platform/internal/tenancy"
)

func signedTenantToken(t *testing.T, secret string, claims TenantClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(5 * time.Minute))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runTenantJWT(t *testing.T, secret, header string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	var seen *http.Request
	TenantJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, seen
}

func TestTenantJWTRejects(t *testing.T) {
	expired := TenantClaims{UserID: "u1"}
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name   string
		secret string
		header string
	}{
		{"secret not configured", "", "Bearer x"},
		{"missing header", "secret", ""},
		{"not bearer", "secret", "Basic abc"},
		{"wrong key", "secret", "Bearer " + signedTenantToken(t, "other", TenantClaims{UserID: "u1"})},
		{"expired", "secret", "Bearer " + signedTenantToken(t, "secret", expired)},
		{"no user", "secret", "Bearer " + signedTenantToken(t, "secret", TenantClaims{Role: "ADMIN"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, seen := runTenantJWT(t, tc.secret, tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
			}
			if seen != nil {
				t.Fatalf("handler must not run")
			}
		})
	}
}

func TestTenantJWTStoresUserAndRole(t *testing.T) {
	rec, seen := runTenantJWT(t, "secret", "Bearer "+signedTenantToken(t, "secret", TenantClaims{UserID: "user-42", Role: "admin"}))
	if rec.Code != http.StatusOK || seen == nil {
		t.Fatalf("expected handler to run, got status %d", rec.Code)
	}
	if id, ok := tenancy.UserIDFromContext(seen.Context()); !ok || id != "user-42" {
		t.Fatalf("unexpected user id %q", id)
	}
	if role := tenancy.RoleFromContext(seen.Context()); role != tenancy.RoleAdmin {
		t.Fatalf("expected admin role, got %q", role)
	}

	subjectOnly := TenantClaims{}
	subjectOnly.Subject = "user-7"
	_, seen = runTenantJWT(t, "secret", "Bearer "+signedTenantToken(t, "secret", subjectOnly))
	if id, _ := tenancy.UserIDFromContext(seen.Context()); id != "user-7" {
		t.Fatalf("expected subject fallback, got %q", id)
	}
	if role := tenancy.RoleFromContext(seen.Context()); role != tenancy.RoleClient {
		t.Fatalf("expected client role, got %q", role)
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPut, "/admin", nil)
	req = req.WithContext(tenancy.WithUser(req.Context(), "u1", tenancy.RoleClient))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}

	req = req.WithContext(tenancy.WithUser(req.Context(), "u1", tenancy.RoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}
