package dberr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineValid(t *testing.T) {
	for _, e := range []Engine{EngineDuckDB, EngineClickHouse, EngineSQLite, EnginePostgres, EngineMySQL} {
		assert.True(t, e.Valid(), string(e))
	}
	assert.False(t, Engine("oracle").Valid())
	assert.False(t, Engine("").Valid())
}

func TestErrorMessagesCarryEngineAndCode(t *testing.T) {
	connErr := &ConnectionError{Engine: EnginePostgres, Reason: ConnAuthFailed, Err: errors.New("bad password")}
	assert.Equal(t, "postgres: connection auth_failed: bad password", connErr.Error())

	qErr := &QueryError{Engine: EngineMySQL, Reason: QuerySyntax, NativeCode: "1064", Err: errors.New("near FORM")}
	assert.Contains(t, qErr.Error(), "mysql")
	assert.Contains(t, qErr.Error(), "1064")
	assert.Contains(t, qErr.Error(), "near FORM")

	sErr := &SchemaError{Engine: EngineSQLite, Reason: SchemaNotFound, Object: "users"}
	assert.Contains(t, sErr.Error(), "users")

	tErr := &TypeMappingError{Engine: EngineDuckDB, NativeType: "GEOMETRY"}
	assert.Contains(t, tErr.Error(), "GEOMETRY")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("outer: %w", &QueryError{Engine: EngineDuckDB, Reason: QueryRuntime, Err: cause})
	assert.True(t, errors.Is(wrapped, cause))

	var qErr *QueryError
	assert.True(t, errors.As(wrapped, &qErr))
	assert.Equal(t, QueryRuntime, qErr.Reason)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsCancelled(&QueryError{Reason: QueryCancelled}))
	assert.False(t, IsCancelled(&QueryError{Reason: QueryTimeout}))
	assert.True(t, IsTimeout(&QueryError{Reason: QueryTimeout}))
	assert.True(t, IsSchemaDrift(&QueryError{Reason: QuerySchemaDrift}))
	assert.True(t, IsPoolExhausted(&ConnectionError{Reason: ConnPoolExhausted}))
	assert.False(t, IsCancelled(context.Canceled))
	assert.False(t, IsCancelled(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&ConnectionError{Reason: ConnUnreachable}))
	assert.False(t, Retryable(&ConnectionError{Reason: ConnAuthFailed}))
	assert.False(t, Retryable(&QueryError{Reason: QueryRuntime}))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(&ConnectionError{Reason: ConnUnreachable}))
	assert.True(t, Fatal(&ConnectionError{Reason: ConnAuthFailed}))
	assert.False(t, Fatal(&ConnectionError{Reason: ConnPoolExhausted}))
	assert.False(t, Fatal(&QueryError{Reason: QueryRuntime}))
}
