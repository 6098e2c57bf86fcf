package exporter

import (
	"bufio"
	"encoding/csv"
	"io"

	"querybridge/internal/logical"
)

// CSVEncoder writes delimited text through encoding/csv. A 64KB bufio layer
// keeps syscall counts down on large exports. Quoting of fields containing
// the delimiter, quote character, or line breaks is handled by encoding/csv.
type CSVEncoder struct {
	w       *csv.Writer
	buf     *bufio.Writer
	columns []logical.Column
	null    string
}

// NewCSVEncoder creates a delimited-text encoder writing to w.
func NewCSVEncoder(w io.Writer, opts Options) *CSVEncoder {
	buf := bufio.NewWriterSize(w, 64*1024)
	cw := csv.NewWriter(buf)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}
	return &CSVEncoder{w: cw, buf: buf, null: opts.NullLiteral}
}

// Begin writes the header row.
func (e *CSVEncoder) Begin(columns []logical.Column) error {
	e.columns = columns
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Name
	}
	return e.w.Write(header)
}

// WriteRow renders one row of canonical values. NULL renders as the
// configured literal, decimals as their exact text.
func (e *CSVEncoder) WriteRow(values []any) error {
	record := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			record[i] = e.null
			continue
		}
		record[i] = logical.FormatValue(v)
	}
	return e.w.Write(record)
}

// Close flushes both buffering layers.
func (e *CSVEncoder) Close() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return err
	}
	return e.buf.Flush()
}
