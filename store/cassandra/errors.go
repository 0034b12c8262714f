// Package cassandra implements the identity store interfaces on top of the
// gocql driver. Durability, replication, and statement retries are the
// driver's responsibility; this package translates framework-level calls
// into parameterized CQL and transport failures into the store's uniform
// error taxonomy.
package cassandra

import (
	"errors"

	"github.com/gocql/gocql"

	"github.com/avelasquez/identity-cassandra/store"
)

// translate maps a driver error onto the store error taxonomy. The first
// failure is surfaced as-is; no retries happen at this layer.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gocql.ErrNoConnections) {
		return store.NewError(store.CodeNoHostAvailable, "no cassandra host available", err)
	}

	var unavailable *gocql.RequestErrUnavailable
	if errors.As(err, &unavailable) {
		return store.NewError(store.CodeUnavailable, "not enough replicas available", err)
	}

	var readTimeout *gocql.RequestErrReadTimeout
	if errors.As(err, &readTimeout) {
		return store.NewError(store.CodeReadTimeout, "read timed out", err)
	}

	var writeTimeout *gocql.RequestErrWriteTimeout
	if errors.As(err, &writeTimeout) {
		return store.NewError(store.CodeWriteTimeout, "write timed out", err)
	}

	var request gocql.RequestError
	if errors.As(err, &request) {
		switch request.Code() {
		case gocql.ErrCodeSyntax, gocql.ErrCodeInvalid, gocql.ErrCodeAlreadyExists, gocql.ErrCodeConfig:
			return store.NewError(store.CodeQueryValidation, request.Message(), err)
		case gocql.ErrCodeUnavailable:
			return store.NewError(store.CodeUnavailable, request.Message(), err)
		case gocql.ErrCodeReadTimeout:
			return store.NewError(store.CodeReadTimeout, request.Message(), err)
		case gocql.ErrCodeWriteTimeout:
			return store.NewError(store.CodeWriteTimeout, request.Message(), err)
		}
	}

	return store.NewError(store.CodeOther, err.Error(), err)
}
