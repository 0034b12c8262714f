package cassandra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"

	"github.com/avelasquez/identity-cassandra/store"
)

func TestTranslate_Nil(t *testing.T) {
	assert.NoError(t, translate(nil))
}

func TestTranslate_NoHostAvailable(t *testing.T) {
	err := translate(gocql.ErrNoConnections)
	assert.Equal(t, store.CodeNoHostAvailable, store.CodeOf(err))
	assert.ErrorIs(t, err, gocql.ErrNoConnections)
}

func TestTranslate_Unavailable(t *testing.T) {
	cause := &gocql.RequestErrUnavailable{Consistency: gocql.Quorum, Required: 3, Alive: 1}
	err := translate(cause)
	assert.Equal(t, store.CodeUnavailable, store.CodeOf(err))
}

func TestTranslate_ReadTimeout(t *testing.T) {
	cause := &gocql.RequestErrReadTimeout{Consistency: gocql.Quorum, Received: 1, BlockFor: 2}
	err := translate(cause)
	assert.Equal(t, store.CodeReadTimeout, store.CodeOf(err))
}

func TestTranslate_WriteTimeout(t *testing.T) {
	cause := &gocql.RequestErrWriteTimeout{Consistency: gocql.Quorum, Received: 1, BlockFor: 2, WriteType: "BATCH"}
	err := translate(cause)
	assert.Equal(t, store.CodeWriteTimeout, store.CodeOf(err))
}

func TestTranslate_WrappedDriverError(t *testing.T) {
	cause := fmt.Errorf("executing batch: %w", &gocql.RequestErrWriteTimeout{})
	err := translate(cause)
	assert.Equal(t, store.CodeWriteTimeout, store.CodeOf(err))
}

func TestTranslate_OtherKeepsMessage(t *testing.T) {
	err := translate(errors.New("connection reset by peer"))
	assert.Equal(t, store.CodeOther, store.CodeOf(err))
	assert.Contains(t, err.Error(), "connection reset by peer")
}
