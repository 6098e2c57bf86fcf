package exporter

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"

	"querybridge/internal/logical"
)

// JSONEncoder writes JSON Lines: one object per row keyed by column name.
type JSONEncoder struct {
	w       io.Writer
	columns []logical.Column
	err     error
}

// NewJSONEncoder creates a JSON Lines encoder writing to w.
func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w}
}

// Begin captures the column names used as object keys. JSON Lines has no
// header row.
func (e *JSONEncoder) Begin(columns []logical.Column) error {
	e.columns = columns
	return nil
}

func (e *JSONEncoder) WriteRow(values []any) error {
	if e.err != nil {
		return e.err
	}

	row := make(map[string]any, len(values))
	for i, v := range values {
		name := "column_" + strconv.Itoa(i)
		if i < len(e.columns) {
			name = e.columns[i].Name
		}
		row[name] = jsonValue(v)
	}

	data, err := json.Marshal(row)
	if err != nil {
		e.err = err
		return err
	}
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		e.err = err
		return err
	}
	return nil
}

func (e *JSONEncoder) Close() error {
	return e.err
}

// jsonValue maps canonical values onto JSON-marshalable ones. Decimals emit
// as raw numeric literals so precision survives, binary as base64.
func jsonValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case logical.Decimal:
		return json.Number(val.Text)
	case logical.Date:
		return val.String()
	case logical.Timestamp:
		return logical.FormatValue(val)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = jsonValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = jsonValue(elem)
		}
		return out
	default:
		return v
	}
}
