// Package dberr defines the shared error taxonomy used across all engine
// drivers. Native errors are always wrapped with engine identity and, where
// available, the native error code, so diagnostics survive the trip through
// the streaming pipeline.
package dberr

import (
	"errors"
	"fmt"
)

// Engine identifies one of the supported database backends.
type Engine string

const (
	EngineDuckDB     Engine = "duckdb"
	EngineClickHouse Engine = "clickhouse"
	EngineSQLite     Engine = "sqlite"
	EnginePostgres   Engine = "postgres"
	EngineMySQL      Engine = "mysql"
)

// Valid reports whether e names a supported engine.
func (e Engine) Valid() bool {
	switch e {
	case EngineDuckDB, EngineClickHouse, EngineSQLite, EnginePostgres, EngineMySQL:
		return true
	}
	return false
}

// ConnReason classifies connection failures.
type ConnReason string

const (
	ConnUnreachable   ConnReason = "unreachable"
	ConnAuthFailed    ConnReason = "auth_failed"
	ConnPoolExhausted ConnReason = "pool_exhausted"
)

// ConnectionError reports a failure to open or keep a native connection.
type ConnectionError struct {
	Engine     Engine
	Reason     ConnReason
	NativeCode string
	Err        error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("%s: connection %s", e.Engine, e.Reason)
	if e.NativeCode != "" {
		msg += " [" + e.NativeCode + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryReason classifies query execution failures.
type QueryReason string

const (
	QuerySyntax      QueryReason = "syntax"
	QueryTimeout     QueryReason = "timeout"
	QueryCancelled   QueryReason = "cancelled"
	QueryRuntime     QueryReason = "runtime"
	QuerySchemaDrift QueryReason = "schema_drift"
)

// QueryError reports a failed or aborted query execution.
type QueryError struct {
	Engine     Engine
	Reason     QueryReason
	NativeCode string
	Err        error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("%s: query %s", e.Engine, e.Reason)
	if e.NativeCode != "" {
		msg += " [" + e.NativeCode + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error { return e.Err }

// SchemaReason classifies introspection failures.
type SchemaReason string

const (
	SchemaNotFound      SchemaReason = "not_found"
	SchemaIntrospection SchemaReason = "introspection"
)

// SchemaError reports a failed catalog lookup.
type SchemaError struct {
	Engine Engine
	Reason SchemaReason
	Object string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s: schema %s", e.Engine, e.Reason)
	if e.Object != "" {
		msg += " " + e.Object
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TypeMappingError reports a native column type with no logical equivalent.
// Mapping never guesses: an unknown type fails the query instead of being
// widened to a best-effort representation.
type TypeMappingError struct {
	Engine     Engine
	NativeType string
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf("%s: unsupported native type %q", e.Engine, e.NativeType)
}

// ExportReason classifies export failures.
type ExportReason string

const (
	ExportIO         ExportReason = "io"
	ExportUnwritable ExportReason = "unwritable"
	ExportWriter     ExportReason = "writer"
)

// ExportError reports a failure while draining a result stream to a sink.
type ExportError struct {
	Reason ExportReason
	Err    error
}

func (e *ExportError) Error() string {
	msg := "export " + string(e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExportError) Unwrap() error { return e.Err }

// IsPoolExhausted reports whether err is a pool saturation failure.
func IsPoolExhausted(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Reason == ConnPoolExhausted
}

// IsCancelled reports whether err is a cancelled query.
func IsCancelled(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Reason == QueryCancelled
}

// IsTimeout reports whether err is a query timeout.
func IsTimeout(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Reason == QueryTimeout
}

// IsSchemaDrift reports whether err is a mid-query schema change.
func IsSchemaDrift(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Reason == QuerySchemaDrift
}

// Retryable reports whether err is a transient connection failure that may be
// retried with backoff. Query and type-mapping errors are never retried.
func Retryable(err error) bool {
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Reason == ConnUnreachable
}

// Fatal reports whether err invalidates the session's native handle. The pool
// evicts fatal sessions so subsequent requests open a fresh connection.
func Fatal(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Reason != ConnPoolExhausted
}
