// Package claims authenticates callers and manages the custom claims that
// grant administrative privileges.
package claims

import (
	"context"
	"strings"

	"github.com/ninahq/nina/internal/domain/model"
)

// Claim keys.
const (
	ClaimAdmin = "admin"
	ClaimRole  = "role"
	ClaimEmail = "email"
)

// Identity is an authenticated caller.
type Identity struct {
	UID    string         `json:"uid"`
	Email  string         `json:"email"`
	Claims map[string]any `json:"claims,omitempty"`
}

// IsAdmin reports whether the identity carries admin: true.
func (id Identity) IsAdmin() bool {
	v, ok := id.Claims[ClaimAdmin].(bool)
	return ok && v
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RoleTable maps emails to roles. Keys are case-insensitive.
type RoleTable struct {
	roles map[string]model.Role
}

// NewRoleTable builds a table from email/role pairs. Unknown roles are
// reported, not silently dropped.
func NewRoleTable(assignments map[string]string) (*RoleTable, error) {
	t := &RoleTable{roles: make(map[string]model.Role, len(assignments))}
	for email, name := range assignments {
		role, err := model.ParseRole(name)
		if err != nil {
			return nil, err
		}
		t.roles[normalizeEmail(email)] = role
	}
	return t, nil
}

// Lookup returns the role assigned to email.
func (t *RoleTable) Lookup(email string) (model.Role, bool) {
	if t == nil {
		return "", false
	}
	r, ok := t.roles[normalizeEmail(email)]
	return r, ok
}

// Len returns the number of assignments.
func (t *RoleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.roles)
}

// ResolveRole picks the caller's role: the admin claim, then the role
// claim, then the table, then contributor.
func ResolveRole(id Identity, table *RoleTable) model.Role {
	if id.IsAdmin() {
		return model.RoleAdmin
	}
	if s, ok := id.Claims[ClaimRole].(string); ok {
		if r, err := model.ParseRole(s); err == nil {
			return r
		}
	}
	if r, ok := table.Lookup(id.Email); ok {
		return r
	}
	return model.RoleContributor
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
