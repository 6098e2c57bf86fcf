package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

// closeGrace bounds how long a close may block on the wire.
const closeGrace = 5 * time.Second

const (
	postgresListSchemas = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY schema_name`

	postgresListTables = `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`

	postgresDescribeTable = `
		SELECT
			column_name,
			udt_name,
			numeric_precision,
			numeric_scale,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
)

// postgresConn wraps one PostgreSQL connection. pgx suspends at network read
// boundaries and sends an out-of-band CancelRequest when the context is
// cancelled, so no dedicated worker is needed.
type postgresConn struct {
	conn *pgx.Conn
}

func openPostgres(ctx context.Context, profile Profile) (Conn, error) {
	sslMode := "disable"
	if profile.TLS {
		sslMode = "require"
	}
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		profile.Host, profile.Port, profile.Username, profile.Password, profile.Database, sslMode,
	)
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, connError(dberr.EnginePostgres, "", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, connError(dberr.EnginePostgres, postgresNativeCode(err), err)
	}
	return &postgresConn{conn: conn}, nil
}

func (c *postgresConn) Engine() dberr.Engine           { return dberr.EnginePostgres }
func (c *postgresConn) ConcurrentStatements() bool     { return false }
func (c *postgresConn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

func (c *postgresConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	return c.conn.Close(ctx)
}

func (c *postgresConn) ListSchemas(ctx context.Context) ([]logical.Schema, error) {
	rows, err := c.conn.Query(ctx, postgresListSchemas)
	if err != nil {
		return nil, schemaError(dberr.EnginePostgres, "", err)
	}
	defer rows.Close()

	var schemas []logical.Schema
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, schemaError(dberr.EnginePostgres, "", err)
		}
		schemas = append(schemas, logical.Schema{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EnginePostgres, "", err)
	}
	return schemas, nil
}

func (c *postgresConn) ListTables(ctx context.Context, schema string) ([]logical.Table, error) {
	rows, err := c.conn.Query(ctx, postgresListTables, schema)
	if err != nil {
		return nil, schemaError(dberr.EnginePostgres, schema, err)
	}
	defer rows.Close()

	var tables []logical.Table
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, schemaError(dberr.EnginePostgres, schema, err)
		}
		tables = append(tables, logical.Table{
			Schema: schema,
			Name:   name,
			Kind:   tableKindFromNative(tableType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EnginePostgres, schema, err)
	}
	return tables, nil
}

func (c *postgresConn) DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error) {
	rows, err := c.conn.Query(ctx, postgresDescribeTable, schema, table)
	if err != nil {
		return nil, schemaError(dberr.EnginePostgres, schema+"."+table, err)
	}
	defer rows.Close()

	var cols []logical.Column
	for rows.Next() {
		var (
			name, udtName, nullable string
			precision, scale        *int
			position                int
		)
		if err := rows.Scan(&name, &udtName, &precision, &scale, &nullable, &position); err != nil {
			return nil, schemaError(dberr.EnginePostgres, schema+"."+table, err)
		}
		native := udtName
		if strings.EqualFold(udtName, "numeric") && precision != nil {
			s := 0
			if scale != nil {
				s = *scale
			}
			native = fmt.Sprintf("numeric(%d,%d)", *precision, s)
		}
		logicalType, _, err := logical.Normalize(dberr.EnginePostgres, native)
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
		return nil, schemaError(dberr.EnginePostgres, schema+"."+table, err)
	}
	if len(cols) == 0 {
		return nil, &dberr.SchemaError{
			Engine: dberr.EnginePostgres,
			Reason: dberr.SchemaNotFound,
			Object: schema + "." + table,
			Err:    fmt.Errorf("no such table"),
		}
	}
	return cols, nil
}

func (c *postgresConn) Execute(ctx context.Context, req Request) (RowSource, error) {
	rows, err := c.conn.Query(ctx, req.SQL, req.Args...)
	if err != nil {
		return nil, postgresQueryError(err)
	}
	return newPostgresSource(c.conn, rows)
}

// postgresSource adapts pgx.Rows. Column types come from the result's type
// OIDs resolved through the connection's type map.
type postgresSource struct {
	rows   pgx.Rows
	cols   []logical.Column
	closed bool
}

func newPostgresSource(conn *pgx.Conn, rows pgx.Rows) (*postgresSource, error) {
	fields := rows.FieldDescriptions()
	cols := make([]logical.Column, len(fields))
	for i, fd := range fields {
		pgType, ok := conn.TypeMap().TypeForOID(fd.DataTypeOID)
		if !ok {
			rows.Close()
			return nil, &dberr.TypeMappingError{
				Engine:     dberr.EnginePostgres,
				NativeType: fmt.Sprintf("oid:%d", fd.DataTypeOID),
			}
		}
		logicalType, _, err := logical.Normalize(dberr.EnginePostgres, pgType.Name)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cols[i] = logical.Column{
			Name:     fd.Name,
			Type:     logicalType,
			Nullable: true,
			Position: i,
		}
	}
	return &postgresSource{rows: rows, cols: cols}, nil
}

func (s *postgresSource) Columns() []logical.Column { return s.cols }

func (s *postgresSource) Next(ctx context.Context) ([]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, postgresQueryError(err)
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, false, postgresQueryError(err)
		}
		return nil, false, nil
	}
	values, err := s.rows.Values()
	if err != nil {
		return nil, false, postgresQueryError(err)
	}

	row := make([]any, len(s.cols))
	for i, v := range values {
		// pgx decodes numeric into its own struct; surface the text form
		// so the coercion layer never sees a float.
		if n, ok := v.(pgtype.Numeric); ok {
			text, err := n.Value()
			if err != nil {
				return nil, false, postgresQueryError(err)
			}
			v = text
		}
		coerced, err := logical.Coerce(s.cols[i].Type, v)
		if err != nil {
			return nil, false, &dberr.QueryError{Engine: dberr.EnginePostgres, Reason: dberr.QueryRuntime, Err: err}
		}
		row[i] = coerced
	}
	return row, true, nil
}

func (s *postgresSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.rows.Close()
	return nil
}

// postgresQueryError maps server SQLSTATE codes onto the taxonomy.
func postgresQueryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		reason := dberr.QueryRuntime
		switch pgErr.Code {
		case "42601":
			reason = dberr.QuerySyntax
		case "57014":
			reason = dberr.QueryCancelled
		}
		return &dberr.QueryError{Engine: dberr.EnginePostgres, Reason: reason, NativeCode: pgErr.Code, Err: err}
	}
	return queryError(dberr.EnginePostgres, "", err)
}

func postgresNativeCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
