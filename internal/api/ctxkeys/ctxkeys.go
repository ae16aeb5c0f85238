// Package ctxkeys holds the typed context keys shared by middleware and handlers.
// It is a leaf package so api and api/handlers can both import it.
package ctxkeys

import "context"

// Key is the named type for API context keys; context.Value compares both
// type and value, so these never collide with plain string keys.
type Key string

const (
	// Subject is the authenticated caller, injected by the auth middleware
	// from the token's sub claim. Absent when auth is disabled.
	Subject Key = "subject"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// String returns the value stored under key, or "" when missing.
func String(ctx context.Context, key Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}
