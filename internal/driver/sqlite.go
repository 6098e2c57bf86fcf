package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

const sqliteListTables = `
	SELECT name, type
	FROM sqlite_master
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

// sqliteConn wraps an embedded SQLite database file. Like DuckDB, the client
// is blocking and single-handle.
type sqliteConn struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, profile Profile) (Conn, error) {
	db, err := sql.Open("sqlite3", profile.Path)
	if err != nil {
		return nil, connError(dberr.EngineSQLite, "", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, connError(dberr.EngineSQLite, "", err)
	}
	return &sqliteConn{db: db}, nil
}

func (c *sqliteConn) Engine() dberr.Engine           { return dberr.EngineSQLite }
func (c *sqliteConn) ConcurrentStatements() bool     { return false }
func (c *sqliteConn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *sqliteConn) Close() error                   { return c.db.Close() }

// ListSchemas reports the attached databases; a plain file has just "main".
func (c *sqliteConn) ListSchemas(ctx context.Context) ([]logical.Schema, error) {
	rows, err := c.db.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return nil, schemaError(dberr.EngineSQLite, "", err)
	}
	defer func() { _ = rows.Close() }()

	var schemas []logical.Schema
	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, schemaError(dberr.EngineSQLite, "", err)
		}
		schemas = append(schemas, logical.Schema{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EngineSQLite, "", err)
	}
	return schemas, nil
}

func (c *sqliteConn) ListTables(ctx context.Context, schema string) ([]logical.Table, error) {
	tables, err := listTablesSQL(ctx, c.db, dberr.EngineSQLite, sqliteListTables)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		tables[i].Schema = schema
	}
	return tables, nil
}

func (c *sqliteConn) DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error) {
	// PRAGMA table_info does not take bound parameters.
	pragma := fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdent(table))
	rows, err := c.db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, schemaError(dberr.EngineSQLite, table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []logical.Column
	for rows.Next() {
		var (
			cid          int
			name, native string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &name, &native, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, schemaError(dberr.EngineSQLite, table, err)
		}
		logicalType, _, err := logical.Normalize(dberr.EngineSQLite, native)
		if err != nil {
			return nil, err
		}
		cols = append(cols, logical.Column{
			Name:     name,
			Type:     logicalType,
			Nullable: notNull == 0,
			Position: cid,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EngineSQLite, table, err)
	}
	if len(cols) == 0 {
		return nil, &dberr.SchemaError{
			Engine: dberr.EngineSQLite,
			Reason: dberr.SchemaNotFound,
			Object: table,
			Err:    fmt.Errorf("no such table"),
		}
	}
	return cols, nil
}

func (c *sqliteConn) Execute(ctx context.Context, req Request) (RowSource, error) {
	rows, err := c.db.QueryContext(ctx, req.SQL, req.Args...)
	if err != nil {
		return nil, queryError(dberr.EngineSQLite, "", err)
	}
	return newSQLSource(dberr.EngineSQLite, rows)
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
