package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"querybridge/internal/logical"
)

// parquetFlushRows is how many buffered rows the encoder hands to the
// underlying writer at a time.
const parquetFlushRows = 1024

// ParquetEncoder writes the columnar format. The parquet schema is derived
// from the logical column types so decimal precision/scale and timestamp
// zone information survive the export. Zone-less timestamp columns are
// recorded in the file's key-value metadata because parquet itself only
// models UTC-adjusted timestamps.
type ParquetEncoder struct {
	w       io.Writer
	pw      *parquet.GenericWriter[map[string]any]
	columns []logical.Column
	buf     []map[string]any
	err     error
}

// NewParquetEncoder creates a parquet encoder writing to w.
func NewParquetEncoder(w io.Writer) *ParquetEncoder {
	return &ParquetEncoder{w: w}
}

func (e *ParquetEncoder) Begin(columns []logical.Column) error {
	e.columns = columns

	group := parquet.Group{}
	var zoneless []string
	for _, col := range columns {
		node, err := parquetNode(col.Type)
		if err != nil {
			e.err = err
			return err
		}
		if col.Nullable {
			node = parquet.Optional(node)
		}
		group[col.Name] = node
		if col.Type.Kind == logical.KindTimestamp && !col.Type.HasZone {
			zoneless = append(zoneless, col.Name)
		}
	}

	opts := []parquet.WriterOption{parquet.Compression(&parquet.Zstd)}
	if len(zoneless) > 0 {
		opts = append(opts, parquet.KeyValueMetadata("zoneless_timestamp_columns", strings.Join(zoneless, ",")))
	}
	e.pw = parquet.NewGenericWriter[map[string]any](e.w, append(opts, parquet.NewSchema("result", group))...)
	e.buf = make([]map[string]any, 0, parquetFlushRows)
	return nil
}

// parquetNode maps one logical type onto a parquet node.
func parquetNode(t logical.Type) (parquet.Node, error) {
	switch t.Kind {
	case logical.KindBool:
		return parquet.Leaf(parquet.BooleanType), nil
	case logical.KindInt:
		if t.Width <= 32 && t.Signed {
			return parquet.Int(32), nil
		}
		if t.Signed {
			return parquet.Int(64), nil
		}
		return parquet.Uint(64), nil
	case logical.KindFloat:
		if t.Width <= 32 {
			return parquet.Leaf(parquet.FloatType), nil
		}
		return parquet.Leaf(parquet.DoubleType), nil
	case logical.KindDecimal:
		switch {
		case t.Precision <= 9:
			return parquet.Decimal(t.Scale, t.Precision, parquet.Int32Type), nil
		case t.Precision <= 18:
			return parquet.Decimal(t.Scale, t.Precision, parquet.Int64Type), nil
		default:
			// No 128-bit integer physical type in the writer path; widen to
			// text rather than lose digits.
			return parquet.String(), nil
		}
	case logical.KindString, logical.KindNull, logical.KindArray, logical.KindStruct, logical.KindAny:
		return parquet.String(), nil
	case logical.KindBinary:
		return parquet.Leaf(parquet.ByteArrayType), nil
	case logical.KindDate:
		return parquet.Date(), nil
	case logical.KindTimestamp:
		return parquet.Timestamp(parquet.Microsecond), nil
	default:
		return nil, fmt.Errorf("parquet: no mapping for logical type %s", t)
	}
}

func (e *ParquetEncoder) WriteRow(values []any) error {
	if e.err != nil {
		return e.err
	}

	row := make(map[string]any, len(values))
	for i, v := range values {
		if i >= len(e.columns) {
			break
		}
		col := e.columns[i]
		pv, err := parquetValue(col.Type, v)
		if err != nil {
			e.err = fmt.Errorf("parquet: column %q: %w", col.Name, err)
			return e.err
		}
		row[col.Name] = pv
	}

	e.buf = append(e.buf, row)
	if len(e.buf) >= parquetFlushRows {
		return e.flush()
	}
	return nil
}

func (e *ParquetEncoder) flush() error {
	if len(e.buf) == 0 {
		return nil
	}
	if _, err := e.pw.Write(e.buf); err != nil {
		e.err = err
		return err
	}
	e.buf = e.buf[:0]
	return nil
}

// parquetValue converts one canonical value into the physical representation
// the column's parquet node expects.
func parquetValue(t logical.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case logical.KindDecimal:
		d, ok := v.(logical.Decimal)
		if !ok {
			return nil, fmt.Errorf("unexpected decimal value %T", v)
		}
		if t.Precision > 18 {
			return d.Text, nil
		}
		parsed, err := decimal.NewFromString(d.Text)
		if err != nil {
			return nil, fmt.Errorf("bad decimal text %q: %w", d.Text, err)
		}
		unscaled := parsed.Shift(int32(t.Scale)).IntPart()
		if t.Precision <= 9 {
			return int32(unscaled), nil
		}
		return unscaled, nil
	case logical.KindDate:
		d, ok := v.(logical.Date)
		if !ok {
			return nil, fmt.Errorf("unexpected date value %T", v)
		}
		days := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Unix() / 86400
		return int32(days), nil
	case logical.KindTimestamp:
		ts, ok := v.(logical.Timestamp)
		if !ok {
			return nil, fmt.Errorf("unexpected timestamp value %T", v)
		}
		if ts.HasZone {
			return ts.Time.UnixMicro(), nil
		}
		// Zone-less wall clock stored as if UTC; the metadata entry marks
		// the column so readers do not trust the zone.
		wall := ts.Time
		utc := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), time.UTC)
		return utc.UnixMicro(), nil
	case logical.KindArray, logical.KindStruct:
		data, err := json.Marshal(jsonValue(v))
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case logical.KindAny:
		// Column stayed undeclared (all NULLs when sampled); render as text.
		return logical.FormatValue(v), nil
	case logical.KindInt:
		if iv, ok := v.(int64); ok && t.Width <= 32 && t.Signed {
			return int32(iv), nil
		}
		return v, nil
	case logical.KindFloat:
		if fv, ok := v.(float64); ok && t.Width <= 32 {
			return float32(fv), nil
		}
		return v, nil
	case logical.KindNull:
		return nil, nil
	default:
		return v, nil
	}
}

func (e *ParquetEncoder) Close() error {
	if e.err != nil {
		return e.err
	}
	if e.pw == nil {
		return nil
	}
	if err := e.flush(); err != nil {
		return err
	}
	return e.pw.Close()
}
