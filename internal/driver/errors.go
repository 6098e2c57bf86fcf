package driver

import (
	"context"
	"errors"
	"strings"

	"querybridge/internal/dberr"
)

// connError wraps a native dial or handshake failure. Authentication
// failures are told apart from unreachable hosts by the native message,
// since the five clients expose no common code for it.
func connError(engine dberr.Engine, nativeCode string, err error) error {
	reason := dberr.ConnUnreachable
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"password", "authentication", "access denied", "auth failed", "login"} {
		if strings.Contains(msg, marker) {
			reason = dberr.ConnAuthFailed
			break
		}
	}
	return &dberr.ConnectionError{Engine: engine, Reason: reason, NativeCode: nativeCode, Err: err}
}

// queryError wraps a native execution failure, folding context expiry into
// the timeout/cancelled reasons so callers see one taxonomy.
func queryError(engine dberr.Engine, nativeCode string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &dberr.QueryError{Engine: engine, Reason: dberr.QueryTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &dberr.QueryError{Engine: engine, Reason: dberr.QueryCancelled, Err: err}
	}
	reason := dberr.QueryRuntime
	if strings.Contains(strings.ToLower(err.Error()), "syntax") {
		reason = dberr.QuerySyntax
	}
	return &dberr.QueryError{Engine: engine, Reason: reason, NativeCode: nativeCode, Err: err}
}

// schemaError wraps a failed introspection query.
func schemaError(engine dberr.Engine, object string, err error) error {
	reason := dberr.SchemaIntrospection
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "does not exist") || strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "no such table") || strings.Contains(msg, "not found") {
		reason = dberr.SchemaNotFound
	}
	return &dberr.SchemaError{Engine: engine, Reason: reason, Object: object, Err: err}
}
