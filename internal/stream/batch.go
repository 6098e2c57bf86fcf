// Package stream assembles native rows into fixed-shape columnar batches
// under a memory ceiling. Batches are produced ahead of the consumer by at
// most one, so a slow consumer never causes unbounded buffering.
package stream

import (
	"querybridge/internal/logical"
)

// Limits caps one batch by row count and by estimated byte size, whichever
// triggers first. A single row larger than MaxBytes still ships alone; the
// ceiling bounds accumulation, not row width.
type Limits struct {
	MaxRows  int
	MaxBytes int64
}

// DefaultLimits returns the batch ceilings used when a caller does not
// override them.
func DefaultLimits() Limits {
	return Limits{MaxRows: 16384, MaxBytes: 16 << 20}
}

func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxRows <= 0 {
		l.MaxRows = d.MaxRows
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = d.MaxBytes
	}
	return l
}

// Batch is one fixed-schema chunk of query results in column-major layout.
// All batches of a single query share an identical schema.
type Batch struct {
	Columns []logical.Column
	// Values holds one slice per column, each with Rows entries.
	Values [][]any
	Rows   int
	// Bytes is the estimated in-memory size of the batch's values.
	Bytes int64
}

func newBatch(cols []logical.Column) *Batch {
	values := make([][]any, len(cols))
	for i := range values {
		values[i] = make([]any, 0, 64)
	}
	return &Batch{Columns: cols, Values: values}
}

func (b *Batch) appendRow(row []any, size int64) {
	for i, v := range row {
		b.Values[i] = append(b.Values[i], v)
	}
	b.Rows++
	b.Bytes += size
}

// Row materializes one row of the batch. Intended for row-oriented writers.
func (b *Batch) Row(i int) []any {
	row := make([]any, len(b.Values))
	for c := range b.Values {
		row[c] = b.Values[c][i]
	}
	return row
}

// estimateSize approximates the in-memory footprint of one canonical value.
// Fixed-width values count their width; variable-width values count their
// payload plus slice overhead.
func estimateSize(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 8
	case bool:
		return 8
	case int64, uint64, float64:
		return 8
	case string:
		return int64(len(val)) + 16
	case []byte:
		return int64(len(val)) + 24
	case logical.Decimal:
		return int64(len(val.Text)) + 24
	case logical.Date:
		return 16
	case logical.Timestamp:
		return 32
	case []any:
		var total int64 = 24
		for _, elem := range val {
			total += estimateSize(elem)
		}
		return total
	}
	return 32
}

func estimateRowSize(row []any) int64 {
	var total int64
	for _, v := range row {
		total += estimateSize(v)
	}
	return total
}
