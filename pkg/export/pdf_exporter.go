package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders tables into a printable class roster.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType is the MIME type of rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension is the file extension of rendered output.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with the table title and body. Wide tables switch to landscape.
func (e *PDFExporter) Render(table Table) ([]byte, error) {
	if err := table.validate(); err != nil {
		return nil, err
	}
	orientation, width := "P", 190.0
	if len(table.Headers) > 5 {
		orientation, width = "L", 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if table.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(table.Title), "", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d record(s)", len(table.Rows)), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	colWidth := width / float64(len(table.Headers)+1)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(colWidth, 8, "#", "1", 0, "C", false, 0, "")
	for _, header := range table.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i, row := range table.Rows {
		pdf.CellFormat(colWidth, 7, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		for _, value := range row {
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
