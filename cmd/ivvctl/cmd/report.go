package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/ivvboard/internal/export"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

var (
	reportProject   string
	reportProjectID string
	reportMonth     string
	reportID        string
	reportFormat    string
	reportOut       string
	reportFont      string
)

// reportCmd represents the report command group
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report commands",
	Long: `Commands for inspecting and exporting monthly reports.

Examples:
  # List the reports of a project
  ivvctl report list --project "Tax Portal"

  # Export a report as Markdown to stdout
  ivvctl report export --project "Tax Portal" --month 2025-06 --format md --out -`,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the reports of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		project, err := resolveProject(ctx, store.Projects(), reportProject, reportProjectID)
		if err != nil {
			return err
		}
		reports, err := store.Reports().ListByProject(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("list reports: %w", err)
		}
		if ok, err := printJSON(reports); ok {
			return err
		}

		if len(reports) == 0 {
			fmt.Printf("No reports for '%s'.\n", project.Name)
			return nil
		}

		fmt.Printf("\n%-36s  %-7s  %-6s  %-8s  %-12s  %s\n",
			"ID", "MONTH", "RATING", "VARIANCE", "STATUS", "ISSUES")
		fmt.Println(strings.Repeat("-", 90))
		for _, r := range reports {
			fmt.Printf("%-36s  %-7s  %-6s  %8d  %-12s  %d\n",
				r.ID,
				r.ReportMonth,
				r.Assessment.Rating,
				r.Schedule.VarianceDays,
				r.Schedule.VarianceStatus,
				len(r.Issues),
			)
		}
		fmt.Printf("\nTotal: %d report(s)\n", len(reports))
		return nil
	},
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a report document",
	Long: `Export a report as Word (docx), Markdown (md) or PDF.

The report is chosen by --month (YYYY-MM) or --id. Output goes to the
file named by --out, or to a generated file name in the current
directory; --out - writes to stdout. PDF export needs a TTF font given
by --font.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(reportFormat)
		if err != nil {
			return err
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		project, err := resolveProject(ctx, store.Projects(), reportProject, reportProjectID)
		if err != nil {
			return err
		}
		report, err := resolveReport(ctx, store.Reports(), project.ID, reportMonth, reportID)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		target := reportOut
		if target != "-" {
			if target == "" {
				target = export.Filename(project, report, format)
			}
			f, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}

		doc := export.Build(project, report)
		if err := export.Render(w, format, doc, export.Options{PDFFontPath: reportFont}); err != nil {
			if target != "-" {
				os.Remove(target)
			}
			return fmt.Errorf("render %s: %w", format, err)
		}

		if target != "-" {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportListCmd, reportExportCmd)

	for _, c := range []*cobra.Command{reportListCmd, reportExportCmd} {
		c.Flags().StringVar(&reportProject, "project", "", "project name")
		c.Flags().StringVar(&reportProjectID, "project-id", "", "project ID")
	}
	reportExportCmd.Flags().StringVar(&reportMonth, "month", "", "report month (YYYY-MM)")
	reportExportCmd.Flags().StringVar(&reportID, "id", "", "report ID")
	reportExportCmd.Flags().StringVarP(&reportFormat, "format", "f", "docx", "export format: docx, md or pdf")
	reportExportCmd.Flags().StringVar(&reportOut, "out", "", "output file, - for stdout")
	reportExportCmd.Flags().StringVar(&reportFont, "font", os.Getenv("IVVBOARD_PDF_FONT"), "TTF font for PDF export")
}

// resolveReport finds a report of the project by month or ID.
func resolveReport(ctx context.Context, repo storage.ReportRepository, projectID, month, id string) (*models.Report, error) {
	if id != "" {
		r, err := repo.GetByID(ctx, projectID, id)
		if err != nil {
			return nil, fmt.Errorf("find report: %w", err)
		}
		if r == nil {
			return nil, fmt.Errorf("report not found")
		}
		return r, nil
	}
	if month == "" {
		return nil, fmt.Errorf("--month or --id is required")
	}

	reports, err := repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	for _, r := range reports {
		if r.ReportMonth == month {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no report for month %s", month)
}
