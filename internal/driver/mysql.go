package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

const (
	mysqlListSchemas = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY schema_name`

	mysqlListTables = `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`

	mysqlDescribeTable = `
		SELECT
			column_name,
			UPPER(data_type),
			numeric_precision,
			numeric_scale,
			column_type LIKE '%unsigned%',
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`
)

// mysqlConn wraps one MySQL server connection through the synchronous
// database/sql client. The driver cancels in-flight statements out of band
// (KILL QUERY) when the context expires.
type mysqlConn struct {
	db *sql.DB
}

func openMySQL(ctx context.Context, profile Profile) (Conn, error) {
	cfg := mysql.NewConfig()
	cfg.User = profile.Username
	cfg.Passwd = profile.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", profile.Host, profile.Port)
	cfg.DBName = profile.Database
	cfg.ParseTime = true
	if profile.TLS {
		cfg.TLSConfig = "true"
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, connError(dberr.EngineMySQL, "", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, connError(dberr.EngineMySQL, mysqlNativeCode(err), err)
	}
	return &mysqlConn{db: db}, nil
}

func (c *mysqlConn) Engine() dberr.Engine           { return dberr.EngineMySQL }
func (c *mysqlConn) ConcurrentStatements() bool     { return false }
func (c *mysqlConn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *mysqlConn) Close() error                   { return c.db.Close() }

func (c *mysqlConn) ListSchemas(ctx context.Context) ([]logical.Schema, error) {
	return listSchemasSQL(ctx, c.db, dberr.EngineMySQL, mysqlListSchemas)
}

func (c *mysqlConn) ListTables(ctx context.Context, schema string) ([]logical.Table, error) {
	return listTablesSQL(ctx, c.db, dberr.EngineMySQL, mysqlListTables, schema)
}

func (c *mysqlConn) DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error) {
	rows, err := c.db.QueryContext(ctx, mysqlDescribeTable, schema, table)
	if err != nil {
		return nil, schemaError(dberr.EngineMySQL, schema+"."+table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []logical.Column
	for rows.Next() {
		var (
			name, dataType, nullable string
			precision, scale         sql.NullInt64
			unsigned                 bool
			position                 int
		)
		if err := rows.Scan(&name, &dataType, &precision, &scale, &unsigned, &nullable, &position); err != nil {
			return nil, schemaError(dberr.EngineMySQL, schema+"."+table, err)
		}

		native := dataType
		if (dataType == "DECIMAL" || dataType == "NUMERIC") && precision.Valid {
			native = fmt.Sprintf("%s(%d,%d)", dataType, precision.Int64, scale.Int64)
		}
		if unsigned {
			native = "UNSIGNED " + native
		}
		logicalType, _, err := logical.Normalize(dberr.EngineMySQL, native)
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
		return nil, schemaError(dberr.EngineMySQL, schema+"."+table, err)
	}
	if len(cols) == 0 {
		return nil, &dberr.SchemaError{
			Engine: dberr.EngineMySQL,
			Reason: dberr.SchemaNotFound,
			Object: schema + "." + table,
			Err:    fmt.Errorf("no such table"),
		}
	}
	return cols, nil
}

func (c *mysqlConn) Execute(ctx context.Context, req Request) (RowSource, error) {
	rows, err := c.db.QueryContext(ctx, req.SQL, req.Args...)
	if err != nil {
		return nil, queryError(dberr.EngineMySQL, mysqlNativeCode(err), err)
	}
	return newSQLSource(dberr.EngineMySQL, rows)
}

// mysqlNativeCode extracts the server error number when present.
func mysqlNativeCode(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number))
	}
	return ""
}
