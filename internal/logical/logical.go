// Package logical is the engine-independent type vocabulary. Every native
// column type maps to exactly one logical type, and every raw value is coerced
// into a canonical Go representation before it enters the streaming pipeline.
package logical

import (
	"fmt"
	"strings"
	"time"
)

// Kind enumerates the logical type tags.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindBinary
	KindDate
	KindTimestamp
	KindArray
	KindStruct
	// KindAny marks a column the engine reported without a declared type.
	// SQLite expression columns land here; each value keeps the type its
	// storage class implies.
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindAny:
		return "any"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type is a tagged variant describing one logical column type.
type Type struct {
	Kind Kind

	// Width is the bit width for Int and Float kinds (8/16/32/64).
	Width int
	// Signed applies to Int kinds.
	Signed bool

	// Precision and Scale apply to Decimal kinds and are preserved exactly.
	Precision int
	Scale     int

	// HasZone applies to Timestamp kinds. A zone-less timestamp stays
	// zone-less; downstream code must not assign it one.
	HasZone bool

	// Elem is the element type for Array kinds.
	Elem *Type
	// Fields are the ordered members for Struct kinds.
	Fields []Field
}

// Field is one named member of a struct type.
type Field struct {
	Name string
	Type Type
}

// String renders the type in a compact, engine-neutral notation.
func (t Type) String() string {
	switch t.Kind {
	case KindInt:
		sign := "i"
		if !t.Signed {
			sign = "u"
		}
		return fmt.Sprintf("%s%d", sign, t.Width)
	case KindFloat:
		return fmt.Sprintf("f%d", t.Width)
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case KindTimestamp:
		if t.HasZone {
			return "timestamp(tz)"
		}
		return "timestamp"
	case KindArray:
		if t.Elem != nil {
			return "array<" + t.Elem.String() + ">"
		}
		return "array"
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + " " + f.Type.String()
		}
		return "struct<" + strings.Join(parts, ", ") + ">"
	default:
		return t.Kind.String()
	}
}

// Equal reports deep equality of two logical types.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Width != o.Width || t.Signed != o.Signed ||
		t.Precision != o.Precision || t.Scale != o.Scale || t.HasZone != o.HasZone {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) {
		return false
	}
	if t.Elem != nil && !t.Elem.Equal(*o.Elem) {
		return false
	}
	if len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
			return false
		}
	}
	return true
}

// Column describes one result or table column.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
	Position int
}

// ColumnsEqual reports whether two column sets agree on name, order and type.
// The first batch of a query fixes its schema; later divergence is an error.
func ColumnsEqual(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Type.Equal(b[i].Type) {
			return false
		}
	}
	return true
}

// TableKind distinguishes tables from views in catalog listings.
type TableKind string

const (
	TableKindTable TableKind = "table"
	TableKindView  TableKind = "view"
)

// Schema is a read-only snapshot of one database schema.
type Schema struct {
	Name string
}

// Table is a read-only snapshot of one table or view. Snapshots are not kept
// in sync with the live engine; callers re-query to refresh.
type Table struct {
	Schema  string
	Name    string
	Kind    TableKind
	Columns []Column
}

// Catalog is the introspection tree handed to the presentation layer.
type Catalog struct {
	Schemas []CatalogSchema
}

// CatalogSchema is one schema node of the catalog tree.
type CatalogSchema struct {
	Name   string
	Tables []Table
}

// Decimal is the canonical value for decimal columns. The text form preserves
// precision and scale exactly; decimals are never widened to floating point.
type Decimal struct {
	Text      string
	Precision int
	Scale     int
}

func (d Decimal) String() string { return d.Text }

// Timestamp is the canonical value for timestamp columns. Zone-less values
// carry HasZone=false and their wall-clock fields are interpreted as-is.
type Timestamp struct {
	Time    time.Time
	HasZone bool
}

// Date is the canonical value for date columns (no time-of-day component).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}
