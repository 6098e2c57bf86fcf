package driver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

// DuckDB catalog queries. DuckDB ships a complete information_schema.
const (
	duckdbListSchemas = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog')
		ORDER BY schema_name`

	duckdbListTables = `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`

	duckdbDescribeTable = `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`
)

// duckdbConn wraps an embedded DuckDB database file (or an in-memory
// database when the path is empty). The native client is blocking; the
// streaming pipeline runs it on a dedicated goroutine.
type duckdbConn struct {
	db *sql.DB
}

func openDuckDB(ctx context.Context, profile Profile) (Conn, error) {
	db, err := sql.Open("duckdb", profile.Path)
	if err != nil {
		return nil, connError(dberr.EngineDuckDB, "", err)
	}
	// One native handle per session; the session pool owns concurrency.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, connError(dberr.EngineDuckDB, "", err)
	}
	return &duckdbConn{db: db}, nil
}

func (c *duckdbConn) Engine() dberr.Engine           { return dberr.EngineDuckDB }
func (c *duckdbConn) ConcurrentStatements() bool     { return false }
func (c *duckdbConn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *duckdbConn) Close() error                   { return c.db.Close() }

func (c *duckdbConn) ListSchemas(ctx context.Context) ([]logical.Schema, error) {
	return listSchemasSQL(ctx, c.db, dberr.EngineDuckDB, duckdbListSchemas)
}

func (c *duckdbConn) ListTables(ctx context.Context, schema string) ([]logical.Table, error) {
	return listTablesSQL(ctx, c.db, dberr.EngineDuckDB, duckdbListTables, schema)
}

func (c *duckdbConn) DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error) {
	rows, err := c.db.QueryContext(ctx, duckdbDescribeTable, schema, table)
	if err != nil {
		return nil, schemaError(dberr.EngineDuckDB, schema+"."+table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []logical.Column
	for rows.Next() {
		var (
			name, nativeType, nullable string
			position                   int
		)
		if err := rows.Scan(&name, &nativeType, &nullable, &position); err != nil {
			return nil, schemaError(dberr.EngineDuckDB, schema+"."+table, err)
		}
		logicalType, _, err := logical.Normalize(dberr.EngineDuckDB, nativeType)
		if err != nil {
			return nil, err
		}
		cols = append(cols, logical.Column{
			Name:     name,
			Type:     logicalType,
			Nullable: nullable == "YES",
			Position: position - 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EngineDuckDB, schema+"."+table, err)
	}
	if len(cols) == 0 {
		return nil, &dberr.SchemaError{
			Engine: dberr.EngineDuckDB,
			Reason: dberr.SchemaNotFound,
			Object: schema + "." + table,
			Err:    fmt.Errorf("no such table"),
		}
	}
	return cols, nil
}

func (c *duckdbConn) Execute(ctx context.Context, req Request) (RowSource, error) {
	rows, err := c.db.QueryContext(ctx, req.SQL, req.Args...)
	if err != nil {
		return nil, queryError(dberr.EngineDuckDB, "", err)
	}
	return newSQLSource(dberr.EngineDuckDB, rows)
}

// listSchemasSQL and listTablesSQL are shared by the database/sql engines
// whose catalogs answer standard information_schema queries.
func listSchemasSQL(ctx context.Context, db *sql.DB, engine dberr.Engine, query string, args ...any) ([]logical.Schema, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schemaError(engine, "", err)
	}
	defer func() { _ = rows.Close() }()

	var schemas []logical.Schema
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, schemaError(engine, "", err)
		}
		schemas = append(schemas, logical.Schema{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(engine, "", err)
	}
	return schemas, nil
}

func listTablesSQL(ctx context.Context, db *sql.DB, engine dberr.Engine, query string, args ...any) ([]logical.Table, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schemaError(engine, "", err)
	}
	defer func() { _ = rows.Close() }()

	schema := ""
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			schema = s
		}
	}

	var tables []logical.Table
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, schemaError(engine, "", err)
		}
		tables = append(tables, logical.Table{
			Schema: schema,
			Name:   name,
			Kind:   tableKindFromNative(tableType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(engine, "", err)
	}
	return tables, nil
}

func tableKindFromNative(nativeKind string) logical.TableKind {
	switch nativeKind {
	case "VIEW", "view", "SYSTEM VIEW":
		return logical.TableKindView
	}
	return logical.TableKindTable
}
