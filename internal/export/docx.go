package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const (
	documentOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentClose = `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440"/></w:sectPr></w:body></w:document>`
)

// Half-point font sizes.
const (
	sizeTitle   = 36
	sizeHeading = 28
	sizeBody    = 22
)

// WriteDOCX renders doc as a WordprocessingML package.
func WriteDOCX(w io.Writer, doc Document) error {
	body, err := documentXML(doc)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(relsXML)},
		{"word/document.xml", body},
	}
	for _, p := range parts {
		f, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := f.Write(p.data); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close docx: %w", err)
	}
	return nil
}

func documentXML(doc Document) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(documentOpen)

	if err := paragraph(&b, doc.Title, sizeTitle, true, false); err != nil {
		return nil, err
	}
	if doc.Subtitle != "" {
		if err := paragraph(&b, doc.Subtitle, sizeBody, false, true); err != nil {
			return nil, err
		}
	}

	for _, s := range doc.Sections {
		if err := paragraph(&b, s.Heading, sizeHeading, true, false); err != nil {
			return nil, err
		}
		for _, p := range s.Paragraphs {
			if err := paragraph(&b, p, sizeBody, false, false); err != nil {
				return nil, err
			}
		}
		if s.Table != nil {
			if err := table(&b, s.Table); err != nil {
				return nil, err
			}
		}
	}

	b.WriteString(documentClose)
	return b.Bytes(), nil
}

func run(b *bytes.Buffer, text string, size int, bold, italic bool) error {
	b.WriteString("<w:r><w:rPr>")
	if bold {
		b.WriteString("<w:b/>")
	}
	if italic {
		b.WriteString("<w:i/>")
	}
	fmt.Fprintf(b, `<w:sz w:val="%d"/></w:rPr><w:t xml:space="preserve">`, size)
	if err := xml.EscapeText(b, []byte(text)); err != nil {
		return fmt.Errorf("escape text: %w", err)
	}
	b.WriteString("</w:t></w:r>")
	return nil
}

func paragraph(b *bytes.Buffer, text string, size int, bold, italic bool) error {
	b.WriteString("<w:p>")
	if err := run(b, text, size, bold, italic); err != nil {
		return err
	}
	b.WriteString("</w:p>")
	return nil
}

func table(b *bytes.Buffer, t *Table) error {
	b.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="5000" w:type="pct"/><w:tblBorders>`)
	for _, edge := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(b, `<w:%s w:val="single" w:sz="4" w:space="0" w:color="auto"/>`, edge)
	}
	b.WriteString(`</w:tblBorders></w:tblPr>`)

	if err := tableRow(b, t.Header, true); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := tableRow(b, row, false); err != nil {
			return err
		}
	}
	b.WriteString("</w:tbl>")
	// Word requires a paragraph between consecutive tables and before sectPr.
	b.WriteString("<w:p/>")
	return nil
}

func tableRow(b *bytes.Buffer, cells []string, header bool) error {
	b.WriteString("<w:tr>")
	for _, c := range cells {
		b.WriteString("<w:tc><w:p>")
		if err := run(b, c, sizeBody, header, false); err != nil {
			return err
		}
		b.WriteString("</w:p></w:tc>")
	}
	b.WriteString("</w:tr>")
	return nil
}
