// Package identity carries the signed-in user through request contexts.
//
// Authentication itself happens upstream (a gateway or the UI's sign-in
// flow). This package only reads what that layer forwards: a stable user
// id, an optional calendar access token and the user's time zone.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request headers read by Middleware.
const (
	HeaderUserID   = "X-User-ID"
	HeaderTimeZone = "X-Time-Zone"
)

var (
	// ErrNoUser is returned when a request carries no user identity.
	ErrNoUser = errors.New("no signed-in user")

	// ErrInvalidUser is returned for user ids that cannot name a storage namespace.
	ErrInvalidUser = errors.New("invalid user id")
)

// User is the signed-in user as seen by the chat core.
type User struct {
	// ID is a stable, provider-issued identifier.
	ID string

	// Credential is the calendar provider access token. Empty means the
	// user has not granted calendar access.
	Credential string

	// TimeZone is an IANA zone name such as "Europe/Berlin".
	TimeZone string
}

// HasCredential reports whether calendar calls can be made for u.
func (u User) HasCredential() bool {
	return u.Credential != ""
}

// Location resolves the user's time zone, falling back to fallback when the
// zone is empty or unknown.
func (u User) Location(fallback *time.Location) *time.Location {
	if u.TimeZone != "" {
		if loc, err := time.LoadLocation(u.TimeZone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// Validate checks that the user id is usable as a namespace.
func (u User) Validate() error {
	if u.ID == "" {
		return ErrNoUser
	}
	if strings.Contains(u.ID, "/") {
		return fmt.Errorf("%w: contains '/'", ErrInvalidUser)
	}
	return nil
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored in ctx.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}
