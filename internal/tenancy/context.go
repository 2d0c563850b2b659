package tenancy

import (
	"context"
	"strings"
)

type ctxKey string

const (
	userKey ctxKey = "scheduling.user_id"
	roleKey ctxKey = "scheduling.role"
)

// Role is the dashboard role of the authenticated caller.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

// ParseRole normalizes a role claim. Unknown roles are treated as clients.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleClient
}

// IsAdmin reports whether the role bypasses tenant scoping.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// WithUser stores the tenant user id and role in context.
func WithUser(ctx context.Context, userID string, role Role) context.Context {
	ctx = context.WithValue(ctx, userKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserIDFromContext extracts the tenant user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

// RoleFromContext returns the caller role, defaulting to RoleClient.
func RoleFromContext(ctx context.Context) Role {
	role, ok := ctx.Value(roleKey).(Role)
	if !ok || role == "" {
		return RoleClient
	}
	return role
}
