// Package exporter serializes result streams to on-disk formats. Each
// encoder consumes typed rows incrementally so exports never materialize the
// full result set.
package exporter

import (
	"fmt"
	"io"
	"path"
	"strings"

	"querybridge/internal/logical"
)

// Format identifies an export output format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatExcel   Format = "xlsx"
	FormatPDF     Format = "pdf"
	FormatParquet Format = "parquet"
)

// FormatForPath infers the format from a destination filename extension.
func FormatForPath(dest string) (Format, error) {
	switch strings.ToLower(path.Ext(dest)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".xlsx":
		return FormatExcel, nil
	case ".pdf":
		return FormatPDF, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("cannot infer export format from %q", dest)
	}
}

// Encoder is the common contract for export formats. Begin fixes the column
// schema, WriteRow appends one typed row, and Close finalizes the output.
// Values arriving at WriteRow carry the canonical representations for their
// declared logical types.
type Encoder interface {
	// Begin writes any leading structure (headers, schema) for the columns.
	// Called exactly once before the first row.
	Begin(columns []logical.Column) error

	// WriteRow appends one row. The slice length matches the Begin columns.
	WriteRow(values []any) error

	// Close flushes buffered data and writes any trailing structure. For
	// container formats this emits the file footer.
	io.Closer
}

// Options tunes format-specific behavior shared across encoders.
type Options struct {
	// Delimiter is the field separator for delimited text. Zero means comma.
	Delimiter rune
	// NullLiteral renders SQL NULL in delimited text. The default empty
	// string makes NULL indistinguishable from an empty string; callers that
	// care set a sentinel such as "NULL" or `\N`.
	NullLiteral string
	// SheetRowLimit caps rows per spreadsheet sheet before splitting. Zero
	// means the format's hard limit.
	SheetRowLimit int
}

// New builds the encoder for a format writing to w.
func New(format Format, w io.Writer, opts Options) (Encoder, error) {
	switch format {
	case FormatCSV:
		return NewCSVEncoder(w, opts), nil
	case FormatJSON:
		return NewJSONEncoder(w), nil
	case FormatExcel:
		return NewExcelEncoder(w, opts), nil
	case FormatPDF:
		return NewPDFEncoder(w), nil
	case FormatParquet:
		return NewParquetEncoder(w), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
