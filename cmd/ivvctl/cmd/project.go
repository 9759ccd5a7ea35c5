package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

var (
	projectName   string
	projectID     string
	projectStatus string
	projectDesc   string
	projectDept   string
	projectStart  string
	projectEnd    string
	projectBudget string
	projectSpent  string
	projectVendor string
)

// projectCmd represents the project command group
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project management commands",
	Long: `Commands for managing monitored projects and their vendor assignment.

Examples:
  # List all projects
  ivvctl project list

  # Create a project
  ivvctl project create --name "Tax Portal" --status "On Track" --budget 12500000 \
    --start 2025-01-01 --end 2026-06-30

  # Assign or unassign the vendor
  ivvctl project assign --name "Tax Portal" --vendor vendor@example.com
  ivvctl project assign --name "Tax Portal" --vendor ""`,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		projects, err := store.Projects().List(context.Background())
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		if ok, err := printJSON(projects); ok {
			return err
		}

		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-24s  %-11s  %-6s  %16s  %16s\n",
			"ID", "NAME", "STATUS", "COLOR", "BUDGET", "SPENT")
		fmt.Println(strings.Repeat("-", 120))
		for _, p := range projects {
			fmt.Printf("%-36s  %-24s  %-11s  %-6s  %16s  %16s\n",
				p.ID,
				truncate(p.Name, 24),
				p.Status,
				p.StatusColor,
				p.Budget.StringFixed(2),
				p.Spent.StringFixed(2),
			)
		}
		fmt.Printf("\nTotal: %d project(s)\n", len(projects))
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	Long: `Create a project. Dates use YYYY-MM-DD; amounts are decimal strings.

Statuses: On Track, At Risk, Critical, Active, Completed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := projectInputFromFlags()
		if err != nil {
			return err
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		project, err := reporting.NewService(store, nil).CreateProject(context.Background(), in)
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}

		fmt.Printf("\nProject created successfully:\n")
		printProject(project, nil)
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show project details",
	Long: `Show a project with its public summary figures.

Identify the project by --name or --id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		project, err := resolveProject(ctx, store.Projects(), projectName, projectID)
		if err != nil {
			return err
		}

		summary := reporting.Summarize(project, time.Now())
		if ok, err := printJSON(struct {
			Project *models.Project          `json:"project"`
			Summary reporting.ProjectSummary `json:"summary"`
		}{project, summary}); ok {
			return err
		}

		var vendor *models.User
		if project.VendorID != "" {
			vendor, err = store.Users().GetByID(ctx, project.VendorID)
			if err != nil {
				return fmt.Errorf("load vendor: %w", err)
			}
		}
		printProject(project, vendor)
		fmt.Printf("  Budget:      %.1f%% spent, %.1f%% remaining\n",
			summary.Budget.SpentPercent, summary.Budget.RemainingPercent)
		if summary.Progress != nil {
			fmt.Printf("  Schedule:    %.1f%% elapsed\n", *summary.Progress)
		}
		return nil
	},
}

var projectAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign a vendor to a project",
	Long: `Assign the vendor account given by --vendor (email) to a project.
An empty --vendor unassigns the project.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		project, err := resolveProject(ctx, store.Projects(), projectName, projectID)
		if err != nil {
			return err
		}

		vendorID := ""
		if strings.TrimSpace(projectVendor) != "" {
			vendor, err := findUser(ctx, store, projectVendor)
			if err != nil {
				return err
			}
			vendorID = vendor.ID
		}

		if _, err := reporting.NewService(store, nil).AssignVendor(ctx, project.ID, vendorID); err != nil {
			return fmt.Errorf("assign vendor: %w", err)
		}

		if vendorID == "" {
			fmt.Printf("Project '%s' is now unassigned.\n", project.Name)
		} else {
			fmt.Printf("Project '%s' assigned to %s.\n", project.Name, projectVendor)
		}
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a project and its reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		project, err := resolveProject(ctx, store.Projects(), projectName, projectID)
		if err != nil {
			return err
		}
		if err := reporting.NewService(store, nil).DeleteProject(ctx, project.ID); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		fmt.Printf("Project '%s' deleted.\n", project.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd, projectCreateCmd, projectShowCmd, projectAssignCmd, projectDeleteCmd)

	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "project name (required)")
	projectCreateCmd.Flags().StringVar(&projectStatus, "status", string(models.StatusActive), "project status")
	projectCreateCmd.Flags().StringVar(&projectDesc, "description", "", "project description")
	projectCreateCmd.Flags().StringVar(&projectDept, "department", "", "owning department")
	projectCreateCmd.Flags().StringVar(&projectStart, "start", "", "start date (YYYY-MM-DD)")
	projectCreateCmd.Flags().StringVar(&projectEnd, "end", "", "end date (YYYY-MM-DD)")
	projectCreateCmd.Flags().StringVar(&projectBudget, "budget", "0", "total budget")
	projectCreateCmd.Flags().StringVar(&projectSpent, "spent", "0", "amount spent")
	projectCreateCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{projectShowCmd, projectAssignCmd, projectDeleteCmd} {
		c.Flags().StringVar(&projectName, "name", "", "project name")
		c.Flags().StringVar(&projectID, "id", "", "project ID")
	}
	projectAssignCmd.Flags().StringVar(&projectVendor, "vendor", "", "vendor account email; empty unassigns")
	projectAssignCmd.MarkFlagRequired("vendor")
}

func projectInputFromFlags() (reporting.ProjectInput, error) {
	in := reporting.ProjectInput{
		Name:        projectName,
		Status:      projectStatus,
		Description: strings.TrimSpace(projectDesc),
		Department:  strings.TrimSpace(projectDept),
	}

	var err error
	if in.StartDate, err = parseDateFlag("start", projectStart); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDateFlag("end", projectEnd); err != nil {
		return in, err
	}
	if in.Budget, err = decimal.NewFromString(projectBudget); err != nil {
		return in, fmt.Errorf("invalid --budget %q: %w", projectBudget, err)
	}
	if in.Spent, err = decimal.NewFromString(projectSpent); err != nil {
		return in, fmt.Errorf("invalid --spent %q: %w", projectSpent, err)
	}
	return in, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, value)
	}
	return &t, nil
}

// resolveProject finds a project by name or ID.
func resolveProject(ctx context.Context, repo storage.ProjectRepository, name, id string) (*models.Project, error) {
	var (
		project *models.Project
		err     error
	)
	switch {
	case id != "":
		project, err = repo.GetByID(ctx, id)
	case name != "":
		project, err = repo.GetByName(ctx, strings.TrimSpace(name))
	default:
		return nil, fmt.Errorf("--name or --id is required")
	}
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("project not found")
	}
	return project, nil
}

func printProject(p *models.Project, vendor *models.User) {
	fmt.Printf("  ID:          %s\n", p.ID)
	fmt.Printf("  Name:        %s\n", p.Name)
	fmt.Printf("  Status:      %s (%s)\n", p.Status, p.StatusColor)
	if p.Department != "" {
		fmt.Printf("  Department:  %s\n", p.Department)
	}
	if p.StartDate != nil && p.EndDate != nil {
		fmt.Printf("  Period:      %s to %s\n", p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"))
	}
	fmt.Printf("  Budget:      %s (spent %s)\n", p.Budget.StringFixed(2), p.Spent.StringFixed(2))
	switch {
	case vendor != nil:
		fmt.Printf("  Vendor:      %s\n", vendor.Email)
	case p.VendorID != "":
		fmt.Printf("  Vendor:      %s\n", p.VendorID)
	}
}
