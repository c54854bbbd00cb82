// Package auth issues and verifies bearer tokens and answers the single
// capability question every protected operation asks.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/record"
)

// Capability is a permission checked by protected operations.
type Capability string

const (
	CapUploadWrite   Capability = "upload:write"
	CapUploadReadOwn Capability = "upload:read-own"
	CapAdmin         Capability = "admin"
)

var roleCapabilities = map[record.Role][]Capability{
	record.RoleUser:  {CapUploadWrite, CapUploadReadOwn},
	record.RoleAdmin: {CapUploadWrite, CapUploadReadOwn, CapAdmin},
}

var (
	// ErrUnauthenticated means the request carries no valid identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the identity lacks the capability.
	ErrForbidden = errors.New("insufficient permissions")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	Role     record.Role `json:"role"`
}

// Can reports whether the identity holds the capability.
func (i *Identity) Can(c Capability) bool {
	if i == nil {
		return false
	}
	for _, have := range roleCapabilities[i.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for Can(CapAdmin).
func (i *Identity) IsAdmin() bool {
	return i.Can(CapAdmin)
}

type contextKey struct{}

// WithIdentity returns a child context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached by Middleware, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}

// Require returns the caller's identity if it holds c.
func Require(ctx context.Context, c Capability) (*Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !id.Can(c) {
		return nil, ErrForbidden
	}
	return id, nil
}
