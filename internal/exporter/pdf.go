package exporter

import (
	"io"

	"github.com/go-pdf/fpdf"

	"querybridge/internal/logical"
)

// PDFEncoder renders results as a simple grid, one cell per value. PDF
// output is for small previews and reports; it is markedly slower and heavier
// than the text formats.
type PDFEncoder struct {
	pdf     *fpdf.Fpdf
	w       io.Writer
	colWide float64
	err     error
}

// NewPDFEncoder creates a PDF encoder writing to w.
func NewPDFEncoder(w io.Writer) *PDFEncoder {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 10)
	pdf.AddPage()
	return &PDFEncoder{pdf: pdf, w: w}
}

func (e *PDFEncoder) Begin(columns []logical.Column) error {
	if e.err != nil {
		return e.err
	}

	pageWidth, _ := e.pdf.GetPageSize()
	left, _, right, _ := e.pdf.GetMargins()
	e.colWide = (pageWidth - left - right) / float64(len(columns))

	e.pdf.SetFont("Arial", "B", 10)
	for _, col := range columns {
		e.pdf.CellFormat(e.colWide, 7, col.Name, "1", 0, "C", false, 0, "")
	}
	e.pdf.Ln(-1)
	e.pdf.SetFont("Arial", "", 10)
	return nil
}

func (e *PDFEncoder) WriteRow(values []any) error {
	if e.err != nil {
		return e.err
	}
	for _, v := range values {
		e.pdf.CellFormat(e.colWide, 7, logical.FormatValue(v), "1", 0, "L", false, 0, "")
	}
	e.pdf.Ln(-1)
	if err := e.pdf.Error(); err != nil {
		e.err = err
		return err
	}
	return nil
}

func (e *PDFEncoder) Close() error {
	if e.err != nil {
		return e.err
	}
	return e.pdf.Output(e.w)
}
