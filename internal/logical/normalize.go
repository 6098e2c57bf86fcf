package logical

import (
	"strconv"
	"strings"
	"time"

	"querybridge/internal/dberr"
)

// Normalize maps a native type descriptor onto its logical type. The mapping
// is deterministic per engine: the same descriptor always yields the same
// logical type. The returned bool is a nullability hint for engines that
// encode it in the type itself (ClickHouse Nullable(T)); other engines always
// report false and carry nullability in catalog metadata instead.
//
// Unsupported descriptors fail with TypeMappingError rather than falling back
// to a best-effort guess.
func Normalize(engine dberr.Engine, native string) (Type, bool, error) {
	descriptor := strings.TrimSpace(native)
	var (
		t   Type
		err error
	)
	nullable := false
	switch engine {
	case dberr.EngineDuckDB:
		t, err = normalizeDuckDB(descriptor)
	case dberr.EngineSQLite:
		t, err = normalizeSQLite(descriptor)
	case dberr.EngineMySQL:
		t, err = normalizeMySQL(descriptor)
	case dberr.EnginePostgres:
		t, err = normalizePostgres(descriptor)
	case dberr.EngineClickHouse:
		t, nullable, err = normalizeClickHouse(descriptor)
	default:
		err = &dberr.TypeMappingError{Engine: engine, NativeType: native}
	}
	if err != nil {
		return Type{}, false, err
	}
	return t, nullable, nil
}

// splitBase separates "DECIMAL(10,2)" into "DECIMAL" and ["10", "2"].
// Nested parentheses in the argument list are kept intact.
func splitBase(s string) (string, []string) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return s, nil
	}
	base := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]

	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(inner[start:]); rest != "" {
		args = append(args, rest)
	}
	return base, args
}

func parseDecimalArgs(args []string) (precision, scale int) {
	if len(args) > 0 {
		precision, _ = strconv.Atoi(args[0])
	}
	if len(args) > 1 {
		scale, _ = strconv.Atoi(args[1])
	}
	return precision, scale
}

func intType(width int, signed bool) Type { return Type{Kind: KindInt, Width: width, Signed: signed} }
func floatType(width int) Type            { return Type{Kind: KindFloat, Width: width} }

func normalizeDuckDB(native string) (Type, error) {
	upper := strings.ToUpper(native)

	// LIST syntax: INTEGER[]
	if strings.HasSuffix(upper, "[]") {
		elem, err := normalizeDuckDB(native[:len(native)-2])
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: KindArray, Elem: &elem}, nil
	}

	base, args := splitBase(upper)
	switch base {
	case "BOOLEAN", "BOOL":
		return Type{Kind: KindBool}, nil
	case "TINYINT":
		return intType(8, true), nil
	case "SMALLINT":
		return intType(16, true), nil
	case "INTEGER", "INT":
		return intType(32, true), nil
	case "BIGINT":
		return intType(64, true), nil
	case "UTINYINT":
		return intType(8, false), nil
	case "USMALLINT":
		return intType(16, false), nil
	case "UINTEGER":
		return intType(32, false), nil
	case "UBIGINT":
		return intType(64, false), nil
	case "HUGEINT":
		return Type{Kind: KindDecimal, Precision: 38, Scale: 0}, nil
	case "FLOAT", "REAL":
		return floatType(32), nil
	case "DOUBLE":
		return floatType(64), nil
	case "DECIMAL", "NUMERIC":
		p, s := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: p, Scale: s}, nil
	case "VARCHAR", "TEXT", "STRING", "UUID":
		return Type{Kind: KindString}, nil
	case "BLOB", "BYTEA":
		return Type{Kind: KindBinary}, nil
	case "DATE":
		return Type{Kind: KindDate}, nil
	case "TIMESTAMP", "DATETIME", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return Type{Kind: KindTimestamp}, nil
	case "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return Type{Kind: KindTimestamp, HasZone: true}, nil
	case "STRUCT":
		fields := make([]Field, 0, len(args))
		for _, arg := range args {
			space := strings.IndexByte(arg, ' ')
			if space < 0 {
				return Type{}, &dberr.TypeMappingError{Engine: dberr.EngineDuckDB, NativeType: native}
			}
			name := strings.Trim(arg[:space], `"`)
			ft, err := normalizeDuckDB(arg[space+1:])
			if err != nil {
				return Type{}, err
			}
			fields = append(fields, Field{Name: name, Type: ft})
		}
		return Type{Kind: KindStruct, Fields: fields}, nil
	}
	return Type{}, &dberr.TypeMappingError{Engine: dberr.EngineDuckDB, NativeType: native}
}

// normalizeSQLite maps declared column types. SQLite columns have affinities
// rather than strict types, so the mapping follows the declared name the way
// the engine's own affinity rules do.
func normalizeSQLite(native string) (Type, error) {
	upper := strings.ToUpper(native)
	base, args := splitBase(upper)

	switch base {
	case "DECIMAL", "NUMERIC":
		if len(args) > 0 {
			p, s := parseDecimalArgs(args)
			return Type{Kind: KindDecimal, Precision: p, Scale: s}, nil
		}
		return floatType(64), nil
	case "BOOLEAN", "BOOL":
		return Type{Kind: KindBool}, nil
	case "DATE":
		return Type{Kind: KindDate}, nil
	case "DATETIME", "TIMESTAMP":
		return Type{Kind: KindTimestamp}, nil
	case "BLOB":
		return Type{Kind: KindBinary}, nil
	case "", "ANY":
		// Expression columns (SELECT 1, COUNT(*), computed values) carry
		// no declared type; each value's storage class decides.
		return Type{Kind: KindAny}, nil
	}

	// Affinity rules: INT wins over CHAR ("...INT..." before "...CHAR...").
	switch {
	case strings.Contains(base, "INT"):
		return intType(64, true), nil
	case strings.Contains(base, "CHAR"), strings.Contains(base, "CLOB"), strings.Contains(base, "TEXT"):
		return Type{Kind: KindString}, nil
	case strings.Contains(base, "REAL"), strings.Contains(base, "FLOA"), strings.Contains(base, "DOUB"):
		return floatType(64), nil
	}
	return Type{}, &dberr.TypeMappingError{Engine: dberr.EngineSQLite, NativeType: native}
}

func normalizeMySQL(native string) (Type, error) {
	upper := strings.ToUpper(native)
	unsigned := strings.HasPrefix(upper, "UNSIGNED ")
	upper = strings.TrimPrefix(upper, "UNSIGNED ")
	base, args := splitBase(upper)

	switch base {
	case "TINYINT":
		return intType(8, !unsigned), nil
	case "SMALLINT", "YEAR":
		return intType(16, !unsigned), nil
	case "MEDIUMINT", "INT", "INTEGER":
		return intType(32, !unsigned), nil
	case "BIGINT":
		return intType(64, !unsigned), nil
	case "FLOAT":
		return floatType(32), nil
	case "DOUBLE":
		return floatType(64), nil
	case "DECIMAL", "NUMERIC":
		p, s := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: p, Scale: s}, nil
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET", "JSON":
		return Type{Kind: KindString}, nil
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return Type{Kind: KindBinary}, nil
	case "DATE":
		return Type{Kind: KindDate}, nil
	case "DATETIME":
		return Type{Kind: KindTimestamp}, nil
	case "TIMESTAMP":
		// MySQL TIMESTAMP is stored in UTC and converted on read.
		return Type{Kind: KindTimestamp, HasZone: true}, nil
	case "TIME":
		return Type{Kind: KindString}, nil
	}
	return Type{}, &dberr.TypeMappingError{Engine: dberr.EngineMySQL, NativeType: native}
}

func normalizePostgres(native string) (Type, error) {
	lower := strings.ToLower(native)

	// pgx names array types with a leading underscore.
	if strings.HasPrefix(lower, "_") {
		elem, err := normalizePostgres(lower[1:])
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: KindArray, Elem: &elem}, nil
	}

	base, args := splitBase(lower)
	switch base {
	case "bool", "boolean":
		return Type{Kind: KindBool}, nil
	case "int2", "smallint", "smallserial":
		return intType(16, true), nil
	case "int4", "integer", "int", "serial", "oid":
		return intType(32, true), nil
	case "int8", "bigint", "bigserial":
		return intType(64, true), nil
	case "float4", "real":
		return floatType(32), nil
	case "float8", "double precision":
		return floatType(64), nil
	case "numeric", "decimal":
		p, s := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: p, Scale: s}, nil
	case "text", "varchar", "character varying", "bpchar", "character", "char", "name",
		"uuid", "json", "jsonb", "xml", "inet", "cidr", "interval", "time", "timetz":
		return Type{Kind: KindString}, nil
	case "bytea":
		return Type{Kind: KindBinary}, nil
	case "date":
		return Type{Kind: KindDate}, nil
	case "timestamp", "timestamp without time zone":
		return Type{Kind: KindTimestamp}, nil
	case "timestamptz", "timestamp with time zone":
		return Type{Kind: KindTimestamp, HasZone: true}, nil
	}
	return Type{}, &dberr.TypeMappingError{Engine: dberr.EnginePostgres, NativeType: native}
}

func normalizeClickHouse(native string) (Type, bool, error) {
	base, args := splitBase(native)

	switch base {
	case "Nullable":
		if len(args) != 1 {
			return Type{}, false, &dberr.TypeMappingError{Engine: dberr.EngineClickHouse, NativeType: native}
		}
		t, _, err := normalizeClickHouse(args[0])
		return t, true, err
	case "LowCardinality":
		if len(args) != 1 {
			return Type{}, false, &dberr.TypeMappingError{Engine: dberr.EngineClickHouse, NativeType: native}
		}
		return normalizeClickHouse(args[0])
	case "Array":
		if len(args) != 1 {
			return Type{}, false, &dberr.TypeMappingError{Engine: dberr.EngineClickHouse, NativeType: native}
		}
		elem, _, err := normalizeClickHouse(args[0])
		if err != nil {
			return Type{}, false, err
		}
		return Type{Kind: KindArray, Elem: &elem}, false, nil
	case "Tuple":
		fields := make([]Field, 0, len(args))
		for i, arg := range args {
			name := "f" + strconv.Itoa(i+1)
			typeExpr := arg
			if space := strings.IndexByte(arg, ' '); space > 0 && !strings.ContainsAny(arg[:space], "()") {
				name = arg[:space]
				typeExpr = arg[space+1:]
			}
			ft, _, err := normalizeClickHouse(typeExpr)
			if err != nil {
				return Type{}, false, err
			}
			fields = append(fields, Field{Name: name, Type: ft})
		}
		return Type{Kind: KindStruct, Fields: fields}, false, nil
	case "Bool":
		return Type{Kind: KindBool}, false, nil
	case "Int8":
		return intType(8, true), false, nil
	case "Int16":
		return intType(16, true), false, nil
	case "Int32":
		return intType(32, true), false, nil
	case "Int64":
		return intType(64, true), false, nil
	case "UInt8":
		return intType(8, false), false, nil
	case "UInt16":
		return intType(16, false), false, nil
	case "UInt32":
		return intType(32, false), false, nil
	case "UInt64":
		return intType(64, false), false, nil
	case "Float32":
		return floatType(32), false, nil
	case "Float64":
		return floatType(64), false, nil
	case "Decimal":
		p, s := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: p, Scale: s}, false, nil
	case "Decimal32":
		p, _ := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: 9, Scale: p}, false, nil
	case "Decimal64":
		p, _ := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: 18, Scale: p}, false, nil
	case "Decimal128":
		p, _ := parseDecimalArgs(args)
		return Type{Kind: KindDecimal, Precision: 38, Scale: p}, false, nil
	case "String", "UUID", "IPv4", "IPv6", "JSON":
		return Type{Kind: KindString}, false, nil
	case "FixedString":
		return Type{Kind: KindString}, false, nil
	case "Date", "Date32":
		return Type{Kind: KindDate}, false, nil
	case "DateTime", "DateTime64":
		// ClickHouse DateTime values are stored as Unix timestamps; a zone
		// argument only affects rendering. They are zone-aware either way.
		return Type{Kind: KindTimestamp, HasZone: true}, false, nil
	case "Enum8", "Enum16":
		return Type{Kind: KindString}, false, nil
	}
	return Type{}, false, &dberr.TypeMappingError{Engine: dberr.EngineClickHouse, NativeType: native}
}

// TypeOfValue infers a logical type from a canonical value. Columns the
// engine left undeclared are pinned down this way from the first row.
func TypeOfValue(v any) (Type, bool) {
	switch v.(type) {
	case bool:
		return Type{Kind: KindBool}, true
	case int, int32, int64:
		return intType(64, true), true
	case uint64:
		return intType(64, false), true
	case float32, float64:
		return floatType(64), true
	case string:
		return Type{Kind: KindString}, true
	case []byte:
		return Type{Kind: KindBinary}, true
	case time.Time, Timestamp:
		return Type{Kind: KindTimestamp}, true
	}
	return Type{}, false
}
