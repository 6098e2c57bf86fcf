package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"querybridge/internal/logical"

	"querybridge/internal/dberr"
)

// sqlSource adapts *sql.Rows to the RowSource contract. DuckDB, SQLite and
// MySQL all go through database/sql, so they share this adapter; only their
// type descriptors differ.
type sqlSource struct {
	engine  dberr.Engine
	rows    *sql.Rows
	cols    []logical.Column
	pending []any
	done    bool
	closed  bool
}

func newSQLSource(engine dberr.Engine, rows *sql.Rows) (*sqlSource, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, queryError(engine, "", fmt.Errorf("column types: %w", err))
	}

	cols := make([]logical.Column, len(types))
	for i, ct := range types {
		native := ct.DatabaseTypeName()
		// database/sql reports DECIMAL without its arguments; recover
		// precision and scale from the column metadata.
		if precision, scale, ok := ct.DecimalSize(); ok && !strings.Contains(native, "(") {
			native = fmt.Sprintf("%s(%d,%d)", native, precision, scale)
		}
		logicalType, _, err := logical.Normalize(engine, native)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		nullable, known := ct.Nullable()
		if !known {
			nullable = true
		}
		cols[i] = logical.Column{
			Name:     ct.Name(),
			Type:     logicalType,
			Nullable: nullable,
			Position: i,
		}
	}

	src := &sqlSource{engine: engine, rows: rows, cols: cols}
	for _, col := range cols {
		if col.Type.Kind == logical.KindAny {
			if err := src.resolveUntyped(); err != nil {
				_ = rows.Close()
				return nil, err
			}
			break
		}
	}
	return src, nil
}

// resolveUntyped pins down columns the engine reported without a declared
// type. SQLite leaves expression columns undeclared, so the first row's
// storage classes decide; the row is held back and served on the next read.
func (s *sqlSource) resolveUntyped() error {
	raw, ok, err := s.scanRow()
	if err != nil {
		return err
	}
	if !ok {
		s.done = true
		return nil
	}
	for i := range s.cols {
		if s.cols[i].Type.Kind != logical.KindAny {
			continue
		}
		if t, known := logical.TypeOfValue(raw[i]); known {
			s.cols[i].Type = t
		}
	}
	s.pending = raw
	return nil
}

func (s *sqlSource) Columns() []logical.Column { return s.cols }

func (s *sqlSource) Next(ctx context.Context) ([]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, queryError(s.engine, "", err)
	}
	if s.pending != nil {
		raw := s.pending
		s.pending = nil
		return s.coerceRow(raw)
	}
	if s.done {
		return nil, false, nil
	}
	raw, ok, err := s.scanRow()
	if err != nil || !ok {
		return nil, false, err
	}
	return s.coerceRow(raw)
}

func (s *sqlSource) scanRow() ([]any, bool, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, false, queryError(s.engine, "", err)
		}
		return nil, false, nil
	}
	raw := make([]any, len(s.cols))
	targets := make([]any, len(s.cols))
	for i := range raw {
		targets[i] = &raw[i]
	}
	if err := s.rows.Scan(targets...); err != nil {
		return nil, false, queryError(s.engine, "", fmt.Errorf("scan row: %w", err))
	}
	return raw, true, nil
}

func (s *sqlSource) coerceRow(raw []any) ([]any, bool, error) {
	row := make([]any, len(s.cols))
	for i, v := range raw {
		coerced, err := logical.Coerce(s.cols[i].Type, v)
		if err != nil {
			return nil, false, &dberr.QueryError{Engine: s.engine, Reason: dberr.QueryRuntime, Err: err}
		}
		row[i] = coerced
	}
	return row, true, nil
}

func (s *sqlSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rows.Close()
}
