package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/signintech/gopdf"
)

const (
	pdfMargin     = 50.0
	pdfFontFamily = "body"
)

type pdfWriter struct {
	pdf    *gopdf.GoPdf
	width  float64
	height float64
}

// WritePDF renders doc as an A4 PDF using the TTF font at fontPath.
func WritePDF(w io.Writer, doc Document, fontPath string) error {
	if fontPath == "" {
		return ErrPDFUnavailable
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	if err := pdf.AddTTFFont(pdfFontFamily, fontPath); err != nil {
		return fmt.Errorf("load pdf font: %w", err)
	}

	pw := &pdfWriter{
		pdf:    pdf,
		width:  gopdf.PageSizeA4.W - 2*pdfMargin,
		height: gopdf.PageSizeA4.H,
	}
	pw.newPage()

	if err := pw.text(doc.Title, 18); err != nil {
		return err
	}
	if doc.Subtitle != "" {
		if err := pw.text(doc.Subtitle, 10); err != nil {
			return err
		}
	}

	for _, s := range doc.Sections {
		pw.space(8)
		if err := pw.text(s.Heading, 14); err != nil {
			return err
		}
		for _, p := range s.Paragraphs {
			if err := pw.text(p, 11); err != nil {
				return err
			}
		}
		if s.Table != nil {
			if err := pw.table(s.Table); err != nil {
				return err
			}
		}
	}

	if err := pdf.Write(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (pw *pdfWriter) newPage() {
	pw.pdf.AddPage()
	pw.pdf.SetXY(pdfMargin, pdfMargin)
}

func (pw *pdfWriter) space(h float64) {
	if pw.pdf.GetY()+h > pw.height-pdfMargin {
		pw.newPage()
		return
	}
	pw.pdf.SetY(pw.pdf.GetY() + h)
}

// text writes s wrapped to the content width, breaking pages as needed.
func (pw *pdfWriter) text(s string, size float64) error {
	if err := pw.pdf.SetFont(pdfFontFamily, "", size); err != nil {
		return fmt.Errorf("set pdf font: %w", err)
	}
	lineHeight := size * 1.4

	for _, para := range strings.Split(s, "\n") {
		lines, err := pw.pdf.SplitText(para, pw.width)
		if err != nil {
			// SplitText rejects empty input.
			lines = []string{para}
		}
		for _, line := range lines {
			if pw.pdf.GetY()+lineHeight > pw.height-pdfMargin {
				pw.newPage()
			}
			pw.pdf.SetX(pdfMargin)
			if err := pw.pdf.Cell(nil, line); err != nil {
				return fmt.Errorf("write pdf text: %w", err)
			}
			pw.pdf.Br(lineHeight)
		}
	}
	return nil
}

// table writes a table as labelled lines: one block per row.
func (pw *pdfWriter) table(t *Table) error {
	for _, row := range t.Rows {
		parts := make([]string, 0, len(row))
		for i, cell := range row {
			label := ""
			if i < len(t.Header) {
				label = t.Header[i] + ": "
			}
			parts = append(parts, label+cell)
		}
		if err := pw.text(strings.Join(parts, "  |  "), 10); err != nil {
			return err
		}
		pw.space(4)
	}
	return nil
}
