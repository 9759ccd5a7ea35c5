package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteMarkdown renders doc as GitHub-flavored markdown.
func WriteMarkdown(w io.Writer, doc Document) error {
	b := bufio.NewWriter(w)

	fmt.Fprintf(b, "# %s\n\n", doc.Title)
	if doc.Subtitle != "" {
		fmt.Fprintf(b, "_%s_\n\n", doc.Subtitle)
	}

	for _, s := range doc.Sections {
		fmt.Fprintf(b, "## %s\n\n", s.Heading)
		for _, p := range s.Paragraphs {
			fmt.Fprintf(b, "%s\n\n", p)
		}
		if s.Table != nil {
			writeMarkdownTable(b, s.Table)
		}
	}

	return b.Flush()
}

func writeMarkdownTable(b *bufio.Writer, t *Table) {
	b.WriteString("| " + strings.Join(escapeCells(t.Header), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(t.Header)) + "\n")
	for _, row := range t.Rows {
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	b.WriteString("\n")
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}
