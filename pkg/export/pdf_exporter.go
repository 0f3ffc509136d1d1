package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfLineHeight = 5.0
	pdfMargin     = 10.0
)

// PDFExporter renders datasets as a paginated table. Wide datasets switch to landscape
// and long cells wrap.
type PDFExporter struct {
	landscapeFrom int
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{landscapeFrom: 6}
}

// Render lays the title, a header row repeated on every page and the wrapped rows.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf: %w", errNoHeaders)
	}
	orientation := "P"
	if len(data.Headers) >= e.landscapeFrom {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pdfMargin, 15, pdfMargin)
	pdf.SetAutoPageBreak(false, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	colWidth := (pageW - 2*pdfMargin) / float64(len(data.Headers))
	bottom := pageH - 15

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")

	pdf.AddPage()
	if title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
		pdf.Ln(2)
	}
	header()

	for _, record := range data.Records() {
		lines := make([][]string, len(record))
		rowLines := 1
		for i, cell := range record {
			lines[i] = splitCell(pdf, tr(cell), colWidth-2)
			rowLines = max(rowLines, len(lines[i]))
		}
		rowHeight := float64(rowLines) * pdfLineHeight
		if pdf.GetY()+rowHeight > bottom {
			pdf.AddPage()
			header()
		}
		x, y := pdf.GetX(), pdf.GetY()
		for i := range record {
			pdf.Rect(x+float64(i)*colWidth, y, colWidth, rowHeight, "D")
			for j, line := range lines[i] {
				pdf.SetXY(x+float64(i)*colWidth+1, y+float64(j)*pdfLineHeight)
				pdf.CellFormat(colWidth-2, pdfLineHeight, line, "", 0, "L", false, 0, "")
			}
		}
		pdf.SetXY(x, y+rowHeight)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func splitCell(pdf *gofpdf.Fpdf, text string, width float64) []string {
	if text == "" {
		return []string{""}
	}
	raw := pdf.SplitLines([]byte(text), width)
	out := make([]string, len(raw))
	for i, line := range raw {
		out[i] = string(line)
	}
	return out
}
