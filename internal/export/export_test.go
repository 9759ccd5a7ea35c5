package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

func sample() (*models.Project, *models.Report) {
	p := models.NewProject("Payroll Modernization", models.StatusAtRisk)
	r := &models.Report{
		ReportMonth: "2025-04",
		ReportDate:  time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		Background:  "Cutover <planning> & data migration",
		Assessment:  models.Assessment{Rating: models.LevelHigh, Description: "Slipping"},
		Issues: []models.Issue{{
			Description: "Vendor | staffing", Impact: models.LevelHigh, Likelihood: models.LevelMedium,
			RiskRating: 5, DateRaised: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Status: models.IssueOpen, AgeDays: 40,
		}},
		Schedule: models.Schedule{
			BaselineDate:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			ProjectedDate:  time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
			VarianceDays:   60,
			VarianceStatus: models.VarianceLate,
		},
		Financials: models.Financials{
			OriginalAmount: decimal.NewFromInt(1_000_000),
			PaidToDate:     decimal.NewFromInt(250_000),
			PaidPercent:    25,
		},
		Scope: models.ScopeStatus{
			Deliverables: []models.Deliverable{{Name: "Design", Status: models.DeliverableCompleted}},
			Completed:    1, Total: 1, CompletionPercent: 100,
		},
	}
	return p, r
}

func indexesInOrder(t *testing.T, text string, needles []string) {
	t.Helper()
	last := -1
	for _, n := range needles {
		i := strings.Index(text, n)
		if i < 0 {
			t.Fatalf("%q not found", n)
		}
		if i <= last {
			t.Fatalf("%q out of order", n)
		}
		last = i
	}
}

func TestBuild_SectionOrder(t *testing.T) {
	doc := Build(sample())
	if len(doc.Sections) != len(SectionOrder) {
		t.Fatalf("got %d sections, want %d", len(doc.Sections), len(SectionOrder))
	}
	for i, s := range doc.Sections {
		if s.Heading != SectionOrder[i] {
			t.Errorf("section %d = %s, want %s", i, s.Heading, SectionOrder[i])
		}
	}
}

func TestWriteDOCX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDOCX(&buf, Build(sample())); err != nil {
		t.Fatalf("WriteDOCX: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = string(data)
	}

	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml"} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing part %s", name)
		}
	}

	body := files["word/document.xml"]
	indexesInOrder(t, body, []string{">Background<", ">Assessment<", ">Issues<", ">Schedule<", ">Finance<", ">Scope<"})

	if !strings.Contains(body, "Cutover &lt;planning&gt; &amp; data migration") {
		t.Error("text should be XML-escaped")
	}
	if !strings.Contains(body, "$1000000.00") {
		t.Error("money not rendered")
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, Build(sample())); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}
	md := buf.String()

	if !strings.HasPrefix(md, "# Payroll Modernization: IV&V Report 2025-04\n") {
		t.Errorf("unexpected title: %q", strings.SplitN(md, "\n", 2)[0])
	}
	indexesInOrder(t, md, []string{"## Background", "## Assessment", "## Issues", "## Schedule", "## Finance", "## Scope"})
	if !strings.Contains(md, `Vendor \| staffing`) {
		t.Error("pipe in cell should be escaped")
	}
	if !strings.Contains(md, "| 2025-12-01 | 2026-01-30 | 60 | Late |") {
		t.Error("schedule row missing")
	}
	if !strings.Contains(md, "1 of 1 deliverables completed (100%).") {
		t.Error("scope summary missing")
	}
}

func TestWritePDF_RequiresFont(t *testing.T) {
	err := WritePDF(io.Discard, Build(sample()), "")
	if !errors.Is(err, ErrPDFUnavailable) {
		t.Errorf("err = %v, want ErrPDFUnavailable", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatDOCX, false},
		{"DOCX", FormatDOCX, false},
		{"markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"pdf", FormatPDF, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFilename(t *testing.T) {
	p, r := sample()
	if got := Filename(p, r, FormatDOCX); got != "payroll-modernization-2025-04.docx" {
		t.Errorf("Filename = %s", got)
	}
	p.Name = "!!!"
	if got := Filename(p, r, FormatMarkdown); got != "report-2025-04.md" {
		t.Errorf("Filename = %s", got)
	}
}
