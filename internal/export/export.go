// Package export renders a report as a document for offline distribution.
// Every format uses the same section order: Background, Assessment, Issues,
// Schedule, Finance, Scope.
package export

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

// Format is an output document format.
type Format string

const (
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "md"
	FormatPDF      Format = "pdf"
)

// ErrPDFUnavailable is returned when PDF output is requested without a font.
var ErrPDFUnavailable = errors.New("pdf export requires a configured TTF font")

// ParseFormat maps a query value to a Format. Empty selects docx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "docx", "word":
		return FormatDOCX, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
}

// SectionOrder is the fixed heading sequence of every exported report.
var SectionOrder = []string{"Background", "Assessment", "Issues", "Schedule", "Finance", "Scope"}

// Table is a header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Section is one heading with its paragraphs and an optional table.
type Section struct {
	Heading    string
	Paragraphs []string
	Table      *Table
}

// Document is the format-independent content of an export.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Build lays out report r of project p.
func Build(p *models.Project, r *models.Report) Document {
	doc := Document{
		Title:    fmt.Sprintf("%s: IV&V Report %s", p.Name, r.ReportMonth),
		Subtitle: fmt.Sprintf("Report date %s. Project status %s.", formatDate(r.ReportDate), p.Status),
	}

	doc.Sections = append(doc.Sections, Section{
		Heading:    "Background",
		Paragraphs: []string{orDash(r.Background)},
	})

	doc.Sections = append(doc.Sections, Section{
		Heading: "Assessment",
		Paragraphs: []string{
			"Overall rating: " + string(r.Assessment.Rating),
			orDash(r.Assessment.Description),
		},
	})

	issues := Section{Heading: "Issues"}
	if len(r.Issues) == 0 {
		issues.Paragraphs = []string{"No issues reported."}
	} else {
		t := &Table{Header: []string{"Issue", "Impact", "Likelihood", "Risk", "Raised", "Age (days)", "Status", "Recommendation"}}
		for _, is := range r.Issues {
			t.Rows = append(t.Rows, []string{
				is.Description,
				string(is.Impact),
				string(is.Likelihood),
				fmt.Sprintf("%d", is.RiskRating),
				formatDate(is.DateRaised),
				fmt.Sprintf("%d", is.AgeDays),
				string(is.Status),
				orDash(is.Recommendation),
			})
		}
		issues.Table = t
	}
	doc.Sections = append(doc.Sections, issues)

	schedule := Section{
		Heading: "Schedule",
		Table: &Table{
			Header: []string{"Baseline completion", "Projected completion", "Variance (days)", "Status"},
			Rows: [][]string{{
				formatDate(r.Schedule.BaselineDate),
				formatDate(r.Schedule.ProjectedDate),
				fmt.Sprintf("%d", r.Schedule.VarianceDays),
				string(r.Schedule.VarianceStatus),
			}},
		},
	}
	if r.Schedule.Narrative != "" {
		schedule.Paragraphs = []string{r.Schedule.Narrative}
	}
	doc.Sections = append(doc.Sections, schedule)

	doc.Sections = append(doc.Sections, Section{
		Heading: "Finance",
		Table: &Table{
			Header: []string{"Original amount", "Paid to date", "Paid (%)"},
			Rows: [][]string{{
				formatMoney(r.Financials.OriginalAmount),
				formatMoney(r.Financials.PaidToDate),
				fmt.Sprintf("%.2f", r.Financials.PaidPercent),
			}},
		},
	})

	scope := Section{
		Heading: "Scope",
		Paragraphs: []string{fmt.Sprintf("%d of %d deliverables completed (%.0f%%).",
			r.Scope.Completed, r.Scope.Total, r.Scope.CompletionPercent)},
	}
	if len(r.Scope.Deliverables) > 0 {
		t := &Table{Header: []string{"Deliverable", "Status", "Description"}}
		for _, d := range r.Scope.Deliverables {
			t.Rows = append(t.Rows, []string{d.Name, string(d.Status), orDash(d.Description)})
		}
		scope.Table = t
	}
	doc.Sections = append(doc.Sections, scope)

	return doc
}

// Options configures rendering.
type Options struct {
	// PDFFontPath is a TTF font file used for PDF output.
	PDFFontPath string
}

// Render writes doc to w in format f.
func Render(w io.Writer, f Format, doc Document, opts Options) error {
	switch f {
	case FormatMarkdown:
		return WriteMarkdown(w, doc)
	case FormatPDF:
		return WritePDF(w, doc, opts.PDFFontPath)
	default:
		return WriteDOCX(w, doc)
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Filename returns a download name such as "payroll-modernization-2025-04.docx".
func Filename(p *models.Project, r *models.Report, f Format) string {
	slug := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(p.Name), "-"), "-")
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s-%s.%s", slug, r.ReportMonth, f)
}
