package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID      contextKey = "trace_id"
	keyTenantID     contextKey = "tenant_id"
	keyUserID       contextKey = "user_id"
	keyRoles        contextKey = "roles"
	keyDelegationID contextKey = "delegation_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithTenantID adds tenant ID to context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// TenantID extracts tenant ID from context.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTenantID).(string)
	return v, ok && v != ""
}

// WithUserID adds user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithRoles adds caller roles to context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, keyRoles, roles)
}

// Roles extracts caller roles from context.
func Roles(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(keyRoles).([]string)
	return v, ok && len(v) > 0
}

// WithDelegationID adds the delegation ID to context so collaborators can
// correlate their logs with a specific Delegate call.
func WithDelegationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyDelegationID, id)
}

// DelegationID extracts the delegation ID from context.
func DelegationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyDelegationID).(string)
	return v, ok && v != ""
}
