package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelasquez/identity-cassandra/domain"
)

func TestError_MessageFormatting(t *testing.T) {
	err := NewError(CodeUnavailable, "not enough replicas", nil)
	assert.Equal(t, "unavailable: not enough replicas", err.Error())

	bare := NewError(CodeReadTimeout, "", nil)
	assert.Equal(t, "read_timeout", bare.Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewError(CodeOther, "boom", cause)

	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeInvalidArgument, CodeOf(InvalidArgument("user must not be nil")))
	assert.Equal(t, CodeInvalidOperation, CodeOf(InvalidOperation("duplicate login", nil)))
	assert.Equal(t, CodeOther, CodeOf(errors.New("unclassified")))
}

func TestCodeOf_WrappedStoreError(t *testing.T) {
	err := fmt.Errorf("outer context: %w", NewError(CodeWriteTimeout, "write timed out", nil))
	assert.Equal(t, CodeWriteTimeout, CodeOf(err))
}

func TestCodeOf_DomainStateErrors(t *testing.T) {
	user := domain.NewUser("alice", "alice@example.com")
	require.NoError(t, user.AddLogin(domain.LoginInfo{LoginProvider: "google", ProviderKey: "k"}))

	dup := user.AddLogin(domain.LoginInfo{LoginProvider: "google", ProviderKey: "k"})
	assert.Equal(t, CodeInvalidOperation, CodeOf(dup))

	noPhone := user.SetPhoneConfirmed(true)
	assert.Equal(t, CodeInvalidOperation, CodeOf(noPhone))
}
