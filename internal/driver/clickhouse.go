package driver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

const (
	clickhouseListSchemas = `
		SELECT name
		FROM system.databases
		WHERE name NOT IN ('system', 'INFORMATION_SCHEMA', 'information_schema')
		ORDER BY name`

	clickhouseListTables = `
		SELECT name, engine
		FROM system.tables
		WHERE database = ?
		ORDER BY name`

	clickhouseDescribeTable = `
		SELECT name, type, position
		FROM system.columns
		WHERE database = ? AND table = ?
		ORDER BY position`
)

// clickhouseConn wraps the native asynchronous ClickHouse client. The client
// multiplexes queries over its own connection set, so one handle supports
// concurrent statements.
type clickhouseConn struct {
	conn chdriver.Conn
}

func openClickHouse(ctx context.Context, profile Profile) (Conn, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", profile.Host, profile.Port)},
		Auth: clickhouse.Auth{
			Database: profile.Database,
			Username: profile.Username,
			Password: profile.Password,
		},
		DialTimeout: 10 * time.Second,
	}
	if profile.TLS {
		opts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, connError(dberr.EngineClickHouse, "", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, connError(dberr.EngineClickHouse, clickhouseNativeCode(err), err)
	}
	return &clickhouseConn{conn: conn}, nil
}

func (c *clickhouseConn) Engine() dberr.Engine           { return dberr.EngineClickHouse }
func (c *clickhouseConn) ConcurrentStatements() bool     { return true }
func (c *clickhouseConn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }
func (c *clickhouseConn) Close() error                   { return c.conn.Close() }

func (c *clickhouseConn) ListSchemas(ctx context.Context) ([]logical.Schema, error) {
	rows, err := c.conn.Query(ctx, clickhouseListSchemas)
	if err != nil {
		return nil, schemaError(dberr.EngineClickHouse, "", err)
	}
	defer func() { _ = rows.Close() }()

	var schemas []logical.Schema
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, schemaError(dberr.EngineClickHouse, "", err)
		}
		schemas = append(schemas, logical.Schema{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EngineClickHouse, "", err)
	}
	return schemas, nil
}

func (c *clickhouseConn) ListTables(ctx context.Context, schema string) ([]logical.Table, error) {
	rows, err := c.conn.Query(ctx, clickhouseListTables, schema)
	if err != nil {
		return nil, schemaError(dberr.EngineClickHouse, schema, err)
	}
	defer func() { _ = rows.Close() }()

	var tables []logical.Table
	for rows.Next() {
		var name, engine string
		if err := rows.Scan(&name, &engine); err != nil {
			return nil, schemaError(dberr.EngineClickHouse, schema, err)
		}
		kind := logical.TableKindTable
		switch engine {
		case "View", "MaterializedView", "LiveView":
			kind = logical.TableKindView
		}
		tables = append(tables, logical.Table{Schema: schema, Name: name, Kind: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EngineClickHouse, schema, err)
	}
	return tables, nil
}

func (c *clickhouseConn) DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error) {
	rows, err := c.conn.Query(ctx, clickhouseDescribeTable, schema, table)
	if err != nil {
		return nil, schemaError(dberr.EngineClickHouse, schema+"."+table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []logical.Column
	for rows.Next() {
		var (
			name, native string
			position     uint64
		)
		if err := rows.Scan(&name, &native, &position); err != nil {
			return nil, schemaError(dberr.EngineClickHouse, schema+"."+table, err)
		}
		logicalType, nullable, err := logical.Normalize(dberr.EngineClickHouse, native)
		if err != nil {
			return nil, err
		}
		cols = append(cols, logical.Column{
			Name:     name,
			Type:     logicalType,
			Nullable: nullable,
			Position: int(position) - 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, schemaError(dberr.EngineClickHouse, schema+"."+table, err)
	}
	if len(cols) == 0 {
		return nil, &dberr.SchemaError{
			Engine: dberr.EngineClickHouse,
			Reason: dberr.SchemaNotFound,
			Object: schema + "." + table,
			Err:    fmt.Errorf("no such table"),
		}
	}
	return cols, nil
}

func (c *clickhouseConn) Execute(ctx context.Context, req Request) (RowSource, error) {
	rows, err := c.conn.Query(ctx, req.SQL, req.Args...)
	if err != nil {
		return nil, clickhouseQueryError(err)
	}
	return newClickHouseSource(rows)
}

// clickhouseSource adapts the native client's typed rows. Scan destinations
// are built from each column's scan type, then unwrapped back into canonical
// values.
type clickhouseSource struct {
	rows   chdriver.Rows
	cols   []logical.Column
	scan   []reflect.Type
	closed bool
}

func newClickHouseSource(rows chdriver.Rows) (*clickhouseSource, error) {
	types := rows.ColumnTypes()
	cols := make([]logical.Column, len(types))
	scan := make([]reflect.Type, len(types))
	for i, ct := range types {
		logicalType, nullable, err := logical.Normalize(dberr.EngineClickHouse, ct.DatabaseTypeName())
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		cols[i] = logical.Column{
			Name:     ct.Name(),
			Type:     logicalType,
			Nullable: nullable || ct.Nullable(),
			Position: i,
		}
		scan[i] = ct.ScanType()
	}
	return &clickhouseSource{rows: rows, cols: cols, scan: scan}, nil
}

func (s *clickhouseSource) Columns() []logical.Column { return s.cols }

func (s *clickhouseSource) Next(ctx context.Context) ([]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, clickhouseQueryError(err)
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, false, clickhouseQueryError(err)
		}
		return nil, false, nil
	}

	targets := make([]any, len(s.scan))
	for i, t := range s.scan {
		targets[i] = reflect.New(t).Interface()
	}
	if err := s.rows.Scan(targets...); err != nil {
		return nil, false, clickhouseQueryError(err)
	}

	row := make([]any, len(s.cols))
	for i, target := range targets {
		v := unwrapPointer(reflect.ValueOf(target).Elem())
		coerced, err := logical.Coerce(s.cols[i].Type, v)
		if err != nil {
			return nil, false, &dberr.QueryError{Engine: dberr.EngineClickHouse, Reason: dberr.QueryRuntime, Err: err}
		}
		row[i] = coerced
	}
	return row, true, nil
}

// unwrapPointer flattens the pointer indirection Nullable columns scan into.
func unwrapPointer(v reflect.Value) any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

func (s *clickhouseSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rows.Close()
}

func clickhouseQueryError(err error) error {
	var ex *clickhouse.Exception
	if errors.As(err, &ex) {
		reason := dberr.QueryRuntime
		switch ex.Code {
		case 62:
			reason = dberr.QuerySyntax
		case 159, 160:
			reason = dberr.QueryTimeout
		case 394:
			reason = dberr.QueryCancelled
		}
		return &dberr.QueryError{
			Engine:     dberr.EngineClickHouse,
			Reason:     reason,
			NativeCode: strconv.Itoa(int(ex.Code)),
			Err:        err,
		}
	}
	return queryError(dberr.EngineClickHouse, "", err)
}

func clickhouseNativeCode(err error) string {
	var ex *clickhouse.Exception
	if errors.As(err, &ex) {
		return strconv.Itoa(int(ex.Code))
	}
	return ""
}
