package logical

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Coerce converts a raw native value into its canonical representation for
// the given logical type. NULLs pass through as nil. Decimal values keep
// their exact text form; timestamps keep or record the absence of a zone.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return coerceBool(v)
	case KindInt:
		return coerceInt(t, v)
	case KindFloat:
		return coerceFloat(v)
	case KindDecimal:
		return coerceDecimal(t, v)
	case KindString:
		return coerceString(v)
	case KindBinary:
		return coerceBinary(v)
	case KindDate:
		return coerceDate(v)
	case KindTimestamp:
		return coerceTimestamp(t, v)
	case KindArray:
		return coerceArray(t, v)
	case KindStruct:
		return coerceStruct(t, v)
	case KindAny:
		return coerceAny(v)
	}
	return nil, fmt.Errorf("coerce: unhandled logical kind %v", t.Kind)
}

// coerceAny canonicalizes a value from an undeclared column. The value's own
// storage class decides its shape.
func coerceAny(v any) (any, error) {
	switch val := v.(type) {
	case bool, int64, uint64, float64, string:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case float32:
		return float64(val), nil
	case []byte:
		return append([]byte(nil), val...), nil
	case time.Time:
		return Timestamp{Time: val}, nil
	}
	return nil, fmt.Errorf("coerce: unsupported value %T for untyped column", v)
}

func coerceBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case uint8:
		return val != 0, nil
	case int8:
		return val != 0, nil
	case []byte:
		return parseBoolText(string(val))
	case string:
		return parseBoolText(val)
	}
	return nil, fmt.Errorf("coerce: cannot read %T as bool", v)
}

func parseBoolText(s string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	}
	return nil, fmt.Errorf("coerce: cannot read %q as bool", s)
}

func coerceInt(t Type, v any) (any, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if !t.Signed && t.Width == 64 {
			return val, nil
		}
		return int64(val), nil
	case []byte:
		return parseIntText(t, string(val))
	case string:
		return parseIntText(t, val)
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("coerce: cannot read %T as integer", v)
}

func parseIntText(t Type, s string) (any, error) {
	s = strings.TrimSpace(s)
	if !t.Signed && t.Width == 64 {
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("coerce: cannot read %q as uint64: %w", s, err)
		}
		return u, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("coerce: cannot read %q as int64: %w", s, err)
	}
	return i, nil
}

func coerceFloat(v any) (any, error) {
	switch val := v.(type) {
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case []byte:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return nil, fmt.Errorf("coerce: cannot read %q as float: %w", val, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("coerce: cannot read %q as float: %w", val, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("coerce: cannot read %T as float", v)
}

func coerceDecimal(t Type, v any) (any, error) {
	mk := func(text string) Decimal {
		return Decimal{Text: text, Precision: t.Precision, Scale: t.Scale}
	}
	switch val := v.(type) {
	case string:
		return mk(strings.TrimSpace(val)), nil
	case []byte:
		return mk(strings.TrimSpace(string(val))), nil
	case decimal.Decimal:
		return mk(val.String()), nil
	case *big.Int:
		return mk(val.String()), nil
	case int64:
		return mk(strconv.FormatInt(val, 10)), nil
	case float64:
		// Some native clients only surface decimals as floats. Re-quantize
		// at the declared scale so DECIMAL(10,2) 123.45 stays "123.45".
		return mk(trimDecimalText(strconv.FormatFloat(val, 'f', t.Scale, 64))), nil
	case float32:
		return mk(trimDecimalText(strconv.FormatFloat(float64(val), 'f', t.Scale, 32))), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return mk(s.String()), nil
	}
	return nil, fmt.Errorf("coerce: cannot read %T as decimal", v)
}

// trimDecimalText removes a redundant trailing dot produced by zero-scale
// formatting ("123." -> "123").
func trimDecimalText(s string) string {
	return strings.TrimSuffix(s, ".")
}

func coerceString(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case [16]byte:
		// UUIDs arrive as raw bytes from some native clients.
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16]), nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return fmt.Sprintf("%v", v), nil
}

func coerceBinary(v any) (any, error) {
	switch val := v.(type) {
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case string:
		return []byte(val), nil
	}
	return nil, fmt.Errorf("coerce: cannot read %T as binary", v)
}

func coerceDate(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		y, m, d := val.Date()
		return Date{Year: y, Month: m, Day: d}, nil
	case string:
		return parseDateText(val)
	case []byte:
		return parseDateText(string(val))
	}
	return nil, fmt.Errorf("coerce: cannot read %T as date", v)
}

func parseDateText(s string) (any, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("coerce: cannot read %q as date: %w", s, err)
	}
	y, m, d := parsed.Date()
	return Date{Year: y, Month: m, Day: d}, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02",
}

func coerceTimestamp(t Type, v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return Timestamp{Time: val, HasZone: t.HasZone}, nil
	case string:
		return parseTimestampText(t, val)
	case []byte:
		return parseTimestampText(t, string(val))
	case int64:
		// Unix seconds, used by SQLite integer datetime storage.
		return Timestamp{Time: time.Unix(val, 0).UTC(), HasZone: t.HasZone}, nil
	}
	return nil, fmt.Errorf("coerce: cannot read %T as timestamp", v)
}

func parseTimestampText(t Type, s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: parsed, HasZone: t.HasZone}, nil
		}
	}
	return nil, fmt.Errorf("coerce: cannot read %q as timestamp", s)
}

func coerceArray(t Type, v any) (any, error) {
	if t.Elem == nil {
		return nil, fmt.Errorf("coerce: array type without element type")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("coerce: cannot read %T as array", v)
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, err := Coerce(*t.Elem, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

func coerceStruct(t Type, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make([]any, len(t.Fields))
		for i, f := range t.Fields {
			coerced, err := Coerce(f.Type, val[f.Name])
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	case []any:
		if len(val) != len(t.Fields) {
			return nil, fmt.Errorf("coerce: struct arity mismatch: %d values for %d fields", len(val), len(t.Fields))
		}
		out := make([]any, len(t.Fields))
		for i, f := range t.Fields {
			coerced, err := Coerce(f.Type, val[i])
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	}
	return nil, fmt.Errorf("coerce: cannot read %T as struct", v)
}

// FormatValue renders a canonical value as text for delimited and tabular
// writers. Decimals keep their exact text; zone-less timestamps print without
// an offset so a zone is never invented downstream.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case Decimal:
		return val.Text
	case string:
		return val
	case []byte:
		return fmt.Sprintf("%x", val)
	case Date:
		return val.String()
	case Timestamp:
		if val.HasZone {
			return val.Time.Format(time.RFC3339Nano)
		}
		return val.Time.Format("2006-01-02 15:04:05.999999999")
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = FormatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
