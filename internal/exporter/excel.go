package exporter

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"querybridge/internal/logical"
)

// excelMaxRows is the xlsx hard limit per sheet.
const excelMaxRows = 1048576

// ExcelEncoder writes .xlsx workbooks through excelize.StreamWriter. When a
// sheet fills up the encoder rolls over to a fresh sheet with the same header
// instead of failing the export.
type ExcelEncoder struct {
	f         *excelize.File
	sw        *excelize.StreamWriter
	w         io.Writer
	columns   []logical.Column
	sheetNum  int
	rowIdx    int
	rowLimit  int
	dateStyle int
	timeStyle int
	err       error
}

// NewExcelEncoder creates a spreadsheet encoder writing to w.
func NewExcelEncoder(w io.Writer, opts Options) *ExcelEncoder {
	limit := opts.SheetRowLimit
	if limit <= 0 || limit > excelMaxRows {
		limit = excelMaxRows
	}
	e := &ExcelEncoder{f: excelize.NewFile(), w: w, rowLimit: limit}

	var err error
	if e.dateStyle, err = e.f.NewStyle(&excelize.Style{NumFmt: 14}); err != nil {
		e.err = err
		return e
	}
	if e.timeStyle, err = e.f.NewStyle(&excelize.Style{NumFmt: 22}); err != nil {
		e.err = err
	}
	return e
}

func (e *ExcelEncoder) Begin(columns []logical.Column) error {
	if e.err != nil {
		return e.err
	}
	e.columns = columns
	return e.openSheet()
}

// openSheet starts the next sheet and writes the header row into it.
func (e *ExcelEncoder) openSheet() error {
	e.sheetNum++
	name := "Sheet" + strconv.Itoa(e.sheetNum)
	if e.sheetNum > 1 {
		if err := e.flushSheet(); err != nil {
			return err
		}
		if _, err := e.f.NewSheet(name); err != nil {
			e.err = err
			return err
		}
	}

	sw, err := e.f.NewStreamWriter(name)
	if err != nil {
		e.err = err
		return err
	}
	e.sw = sw
	e.rowIdx = 1

	header := make([]any, len(e.columns))
	for i, col := range e.columns {
		header[i] = excelize.Cell{Value: col.Name}
	}
	return e.setRow(header)
}

func (e *ExcelEncoder) flushSheet() error {
	if e.sw == nil {
		return nil
	}
	if err := e.sw.Flush(); err != nil {
		e.err = err
		return err
	}
	e.sw = nil
	return nil
}

func (e *ExcelEncoder) setRow(cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, e.rowIdx)
	if err != nil {
		e.err = err
		return err
	}
	if err := e.sw.SetRow(cell, cells); err != nil {
		e.err = err
		return err
	}
	e.rowIdx++
	return nil
}

func (e *ExcelEncoder) WriteRow(values []any) error {
	if e.err != nil {
		return e.err
	}
	if e.rowIdx > e.rowLimit {
		if err := e.openSheet(); err != nil {
			return err
		}
	}

	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = e.cell(v)
	}
	return e.setRow(cells)
}

// cell maps one canonical value onto an excelize cell, applying date and
// timestamp number formats so spreadsheets show real date cells rather than
// text.
func (e *ExcelEncoder) cell(v any) excelize.Cell {
	switch val := v.(type) {
	case nil:
		return excelize.Cell{}
	case bool, int64, uint64, float64, string:
		return excelize.Cell{Value: val}
	case logical.Decimal:
		// Exact text; a float cell would corrupt high-precision values.
		return excelize.Cell{Value: val.Text}
	case logical.Date:
		t := time.Date(val.Year, val.Month, val.Day, 0, 0, 0, 0, time.UTC)
		return excelize.Cell{Value: t, StyleID: e.dateStyle}
	case logical.Timestamp:
		return excelize.Cell{Value: val.Time, StyleID: e.timeStyle}
	case []byte:
		return excelize.Cell{Value: fmt.Sprintf("%x", val)}
	default:
		return excelize.Cell{Value: logical.FormatValue(v)}
	}
}

func (e *ExcelEncoder) Close() error {
	if e.err != nil {
		return e.err
	}
	if err := e.flushSheet(); err != nil {
		return err
	}
	if err := e.f.Write(e.w); err != nil {
		return err
	}
	return e.f.Close()
}
