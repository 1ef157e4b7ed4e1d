package identity

import (
	"context"
	"strings"
)

// Role is the capability class of an authenticated caller.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// ParseRole normalizes a claim value into a Role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Identity is the already-authenticated caller of a core operation.
type Identity struct {
	ID   string
	Role Role
}

// IsDoctor reports whether the caller acts with doctor capabilities.
func (i Identity) IsDoctor() bool {
	return i.Role == RoleDoctor
}

type ctxKey string

const identityKey ctxKey = "slotbook.identity"

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, who Identity) context.Context {
	return context.WithValue(ctx, identityKey, who)
}

// FromContext extracts the caller identity if present.
func FromContext(ctx context.Context) (Identity, bool) {
	who, ok := ctx.Value(identityKey).(Identity)
	return who, ok && who.ID != ""
}
