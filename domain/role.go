package domain

import "github.com/google/uuid"

// Role is a named role. Membership is not stored here: each user row
// carries the set of normalized role names it belongs to.
type Role struct {
	ID             uuid.UUID `cql:"id"`
	Name           string    `cql:"name"`
	NormalizedName string    `cql:"normalized_name"`
}

// NewRole creates a role with a fresh identifier.
func NewRole(name string) *Role {
	return &Role{
		ID:   uuid.New(),
		Name: name,
	}
}
