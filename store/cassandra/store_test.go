package cassandra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelasquez/identity-cassandra/config"
	"github.com/avelasquez/identity-cassandra/domain"
	"github.com/avelasquez/identity-cassandra/store"
)

func TestNewUserStore_Validation(t *testing.T) {
	_, err := NewUserStore(nil, &config.Options{KeyspaceName: "identity"}, nil)
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))
}

func TestNewRoleStore_Validation(t *testing.T) {
	_, err := NewRoleStore(nil, &config.Options{KeyspaceName: "identity"}, nil)
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))
}

func TestNewInitializer_Validation(t *testing.T) {
	_, err := NewInitializer(nil, &config.Options{KeyspaceName: "identity"}, nil)
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))
}

// Every operation observes cancellation before doing any work.
func TestUserStore_RejectsCancelledContext(t *testing.T) {
	s := newBareStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	user := domain.NewUser("alice", "alice@example.com")

	assert.ErrorIs(t, s.CreateUser(ctx, user), context.Canceled)
	assert.ErrorIs(t, s.UpdateUser(ctx, user), context.Canceled)
	assert.ErrorIs(t, s.DeleteUser(ctx, user), context.Canceled)

	_, err := s.FindUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.FindUserByUsername(ctx, "ALICE")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.UsersInRole(ctx, "ADMIN")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.UserClaims(ctx, user)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoleStore_RejectsCancelledContext(t *testing.T) {
	s := &RoleStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	role := domain.NewRole("admin")

	assert.ErrorIs(t, s.CreateRole(ctx, role), context.Canceled)
	assert.ErrorIs(t, s.UpdateRole(ctx, role), context.Canceled)
	assert.ErrorIs(t, s.DeleteRole(ctx, role), context.Canceled)

	_, err := s.FindRoleByID(ctx, role.ID)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.FindRoleByName(ctx, "ADMIN")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserStore_NilEntityArguments(t *testing.T) {
	s := newBareStore()
	ctx := context.Background()

	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.CreateUser(ctx, nil)))
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.UpdateUser(ctx, nil)))
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.DeleteUser(ctx, nil)))
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.AddUserClaims(ctx, nil, nil)))
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.RemoveUserClaims(ctx, nil, nil)))

	_, err := s.UserClaims(ctx, nil)
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))

	_, err = s.FindUserByUsername(ctx, "")
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))

	_, err = s.FindUserByEmail(ctx, "")
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))

	_, err = s.FindUserByLogin(ctx, "", "key")
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))

	_, err = s.UsersForClaim(ctx, store.Claim{})
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))

	_, err = s.UsersForClaim(ctx, store.Claim{Type: "role"})
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))
}

func TestRoleStore_NilEntityArguments(t *testing.T) {
	s := &RoleStore{}
	ctx := context.Background()

	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.CreateRole(ctx, nil)))
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.UpdateRole(ctx, nil)))
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(s.DeleteRole(ctx, nil)))

	_, err := s.RoleClaims(ctx, nil)
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))

	_, err = s.FindRoleByName(ctx, "")
	assert.Equal(t, store.CodeInvalidArgument, store.CodeOf(err))
}

// A role update that keeps the normalized name must not rewrite the
// per-user membership sets: the remove and re-add would share a batch
// timestamp and the delete wins, dropping the membership.
func TestMembershipRewriteNeeded(t *testing.T) {
	assert.False(t, membershipRewriteNeeded("ADMIN", "ADMIN"))
	assert.True(t, membershipRewriteNeeded("ADMIN", "OPERATORS"))
	assert.True(t, membershipRewriteNeeded("", "ADMIN"))
}

// The store interfaces are satisfied by the cassandra implementations.
func TestInterfaceCompliance(t *testing.T) {
	var userStore store.UserStore = &UserStore{}
	var roleStore store.RoleStore = &RoleStore{}
	require.NotNil(t, userStore)
	require.NotNil(t, roleStore)
}
