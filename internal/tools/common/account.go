package common

import (
	"context"

	"github.com/teemow/calcompanion/internal/identity"
)

// ResolveUser returns the user for a tool call.
//
// Priority order:
//  1. User stored in the context by the identity middleware
//  2. fallback, typically configured for single-user transports like stdio
func ResolveUser(ctx context.Context, fallback identity.User) identity.User {
	if u, ok := identity.FromContext(ctx); ok && u.ID != "" {
		return u
	}
	return fallback
}
