package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybridge/internal/dberr"
)

func TestConnErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		want dberr.ConnReason
	}{
		{errors.New("dial tcp 10.0.0.1:5432: connection refused"), dberr.ConnUnreachable},
		{errors.New("pq: password authentication failed for user"), dberr.ConnAuthFailed},
		{errors.New("Access denied for user 'root'@'localhost'"), dberr.ConnAuthFailed},
		{errors.New("i/o timeout"), dberr.ConnUnreachable},
	}
	for _, tt := range tests {
		var cErr *dberr.ConnectionError
		require.ErrorAs(t, connError(dberr.EnginePostgres, "", tt.err), &cErr, tt.err.Error())
		assert.Equal(t, tt.want, cErr.Reason, tt.err.Error())
	}
}

func TestQueryErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		want dberr.QueryReason
	}{
		{fmt.Errorf("query: %w", context.DeadlineExceeded), dberr.QueryTimeout},
		{fmt.Errorf("query: %w", context.Canceled), dberr.QueryCancelled},
		{errors.New(`syntax error at or near "FORM"`), dberr.QuerySyntax},
		{errors.New("division by zero"), dberr.QueryRuntime},
	}
	for _, tt := range tests {
		var qErr *dberr.QueryError
		require.ErrorAs(t, queryError(dberr.EngineDuckDB, "", tt.err), &qErr, tt.err.Error())
		assert.Equal(t, tt.want, qErr.Reason, tt.err.Error())
	}
}

func TestSchemaErrorClassification(t *testing.T) {
	err := schemaError(dberr.EngineSQLite, "users", errors.New("no such table: users"))
	var sErr *dberr.SchemaError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, dberr.SchemaNotFound, sErr.Reason)
	assert.Equal(t, "users", sErr.Object)

	err = schemaError(dberr.EnginePostgres, "s.t", errors.New("permission denied"))
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, dberr.SchemaIntrospection, sErr.Reason)
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), Profile{Engine: dberr.Engine("oracle")})
	var cErr *dberr.ConnectionError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, dberr.ConnUnreachable, cErr.Reason)
}

func TestProfileKeyDistinguishesTargets(t *testing.T) {
	a := Profile{Engine: dberr.EngineSQLite, Path: "/tmp/a.db"}
	b := Profile{Engine: dberr.EngineSQLite, Path: "/tmp/b.db"}
	assert.NotEqual(t, a.Key(), b.Key())

	c := Profile{Engine: dberr.EnginePostgres, Host: "db1", Port: 5432, Database: "app", Username: "svc"}
	d := c
	assert.Equal(t, c.Key(), d.Key())
}
