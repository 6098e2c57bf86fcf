// Package driver defines the capability contract every engine adapter
// implements, and the five concrete adapters. Callers never branch on engine
// kind; they speak to the Conn and RowSource interfaces only.
package driver

import (
	"context"
	"fmt"
	"time"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

// Profile describes how to reach one database. Immutable once created.
type Profile struct {
	// Name is the caller-chosen identity of this profile.
	Name string
	// Engine selects the adapter.
	Engine dberr.Engine

	// Path is the database file path for embedded engines (DuckDB, SQLite).
	Path string

	// Network settings for server engines.
	Host     string
	Port     int
	Database string
	Username string
	Password string
	TLS      bool

	// PoolSize caps concurrent native connections for this profile.
	PoolSize int
	// AcquireTimeout bounds how long a caller blocks on a saturated pool.
	AcquireTimeout time.Duration
	// StatementTimeout is the default per-statement execution ceiling.
	StatementTimeout time.Duration
}

// Key returns a stable identity for pooling. Two profiles with the same key
// share a pool.
func (p Profile) Key() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s%s", p.Engine, p.Username, p.Host, p.Port, p.Database, p.Path)
}

// Request is one statement execution.
type Request struct {
	SQL string
	// Args are bound positional parameters.
	Args []any
	// RowLimit, when positive, caps the rows the caller wants back. The
	// dialect layer applies it before the request reaches a driver.
	RowLimit int
	// Timeout overrides the profile's statement timeout when positive.
	Timeout time.Duration
}

// RowSource is a pull-based, finite, non-restartable producer of coerced
// rows. Consuming it advances the native cursor irreversibly. Values are
// already canonical (see logical.Coerce).
type RowSource interface {
	// Columns returns the fixed result schema. Valid after Execute returns.
	Columns() []logical.Column

	// Next returns the next row, or ok=false after the final row. A native
	// failure mid-iteration is returned wrapped in the error taxonomy.
	Next(ctx context.Context) (row []any, ok bool, err error)

	// Close releases the native cursor. Safe to call more than once.
	Close() error
}

// Conn is one live native connection (or, for clients that multiplex
// internally, one native handle). Conns are owned by a single Session and
// are never shared across sessions concurrently.
type Conn interface {
	Engine() dberr.Engine

	// Ping verifies the native handle is still usable.
	Ping(ctx context.Context) error

	// ListSchemas returns the catalog's schemas.
	ListSchemas(ctx context.Context) ([]logical.Schema, error)

	// ListTables returns tables and views in one schema.
	ListTables(ctx context.Context, schema string) ([]logical.Table, error)

	// DescribeTable returns the ordered column descriptors of one table.
	DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error)

	// Execute runs one statement and returns its row source.
	Execute(ctx context.Context, req Request) (RowSource, error)

	// ConcurrentStatements reports whether this handle supports concurrent
	// statements. When false the session serializes queries on it.
	ConcurrentStatements() bool

	Close() error
}

// Open dials the engine named by the profile.
func Open(ctx context.Context, profile Profile) (Conn, error) {
	switch profile.Engine {
	case dberr.EngineDuckDB:
		return openDuckDB(ctx, profile)
	case dberr.EngineSQLite:
		return openSQLite(ctx, profile)
	case dberr.EngineMySQL:
		return openMySQL(ctx, profile)
	case dberr.EnginePostgres:
		return openPostgres(ctx, profile)
	case dberr.EngineClickHouse:
		return openClickHouse(ctx, profile)
	}
	return nil, &dberr.ConnectionError{
		Engine: profile.Engine,
		Reason: dberr.ConnUnreachable,
		Err:    fmt.Errorf("unknown engine %q", profile.Engine),
	}
}
