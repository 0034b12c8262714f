package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/avelasquez/identity-cassandra/domain"
)

// Claim is a type/value pair attached to a user or a role. Uniqueness is
// the (owner, type, value) triple, enforced by the claim tables' composite
// keys.
type Claim struct {
	Type  string
	Value string
}

// AccountOps covers user row persistence and the value-based lookups
// served by the secondary views. Lookups return (nil, nil) when nothing
// matches; absence is not an error.
type AccountOps interface {
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, user *domain.User) error

	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindUserByUsername(ctx context.Context, normalizedUsername string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, normalizedEmail string) (*domain.User, error)
	FindUserByLogin(ctx context.Context, loginProvider, providerKey string) (*domain.User, error)

	UsersInRole(ctx context.Context, normalizedRoleName string) ([]*domain.User, error)
	UsersForClaim(ctx context.Context, claim Claim) ([]*domain.User, error)
}

// CredentialOps covers two-factor recovery codes and the authenticator
// key. Both are stored as internal tokens on the user; mutations are in
// memory until UpdateUser persists them.
type CredentialOps interface {
	SetAuthenticatorKey(user *domain.User, key string) error
	AuthenticatorKey(user *domain.User) (string, error)

	ReplaceCodes(user *domain.User, codes []string) error
	RedeemCode(user *domain.User, code string) (bool, error)
	CountCodes(user *domain.User) (int, error)
}

// ClaimOps covers the user claim collection, held in a companion table
// keyed by the owning user's identifier.
type ClaimOps interface {
	UserClaims(ctx context.Context, user *domain.User) ([]Claim, error)
	AddUserClaims(ctx context.Context, user *domain.User, claims []Claim) error
	RemoveUserClaims(ctx context.Context, user *domain.User, claims []Claim) error
	ReplaceUserClaim(ctx context.Context, user *domain.User, oldClaim, newClaim Claim) error
}

// UserStore is the full user persistence surface.
type UserStore interface {
	AccountOps
	CredentialOps
	ClaimOps
}

// RoleStore covers role persistence. UpdateRole and DeleteRole maintain
// the denormalized membership sets held on user rows: renaming or deleting
// a role rewrites every holding user's set and the role row in a single
// atomic batch.
type RoleStore interface {
	CreateRole(ctx context.Context, role *domain.Role) error
	UpdateRole(ctx context.Context, role *domain.Role) error
	DeleteRole(ctx context.Context, role *domain.Role) error

	FindRoleByID(ctx context.Context, id uuid.UUID) (*domain.Role, error)
	FindRoleByName(ctx context.Context, normalizedName string) (*domain.Role, error)

	RoleClaims(ctx context.Context, role *domain.Role) ([]Claim, error)
	AddRoleClaim(ctx context.Context, role *domain.Role, claim Claim) error
	RemoveRoleClaim(ctx context.Context, role *domain.Role, claim Claim) error
}
