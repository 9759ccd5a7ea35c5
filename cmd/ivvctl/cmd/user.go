package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/ivvboard/internal/api/auth"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

var (
	userEmail    string
	userName     string
	userRole     string
	listRole     string
	userApproval string

	stdin = bufio.NewReader(os.Stdin)
)

// userCmd represents the user command group
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Account management commands",
	Long: `Commands for managing ivvboard accounts.

These commands operate directly on the database file and are intended
for operators who manage accounts outside of the dashboard.

Examples:
  # List accounts awaiting approval
  ivvctl user list --approval pending

  # Create an oversight staff account
  ivvctl user create --email analyst@example.gov --role ets

  # Approve a vendor
  ivvctl user approve --email vendor@example.com`,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Long: `List accounts, optionally filtered by role and approval status.
Passwords are never displayed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseUserFilter(listRole, userApproval)
		if err != nil {
			return err
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.Users().List(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if ok, err := printJSON(list); ok {
			return err
		}

		if len(list) == 0 {
			fmt.Println("No users found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-30s  %-20s  %-7s  %-9s  %s\n",
			"ID", "EMAIL", "NAME", "ROLE", "APPROVAL", "CREATED")
		fmt.Println(strings.Repeat("-", 125))
		for _, u := range list {
			fmt.Printf("%-36s  %-30s  %-20s  %-7s  %-9s  %s\n",
				u.ID,
				truncate(u.Email, 30),
				truncate(u.DisplayName, 20),
				u.Role,
				u.ApprovalStatus,
				u.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		fmt.Printf("\nTotal: %d user(s)\n", len(list))
		return nil
	},
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Long: `Create an account. Accounts created here are approved immediately.

The password is prompted interactively so it stays out of shell history.

Password requirements:
  - Minimum 12 characters
  - An uppercase letter
  - A lowercase letter
  - A digit
  - A punctuation or symbol character
  - At most 72 bytes

Roles:
  - public: reads the public project directory
  - vendor: submits reports for assigned projects
  - ets:    oversight staff, manages projects and accounts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := auth.NormalizeEmail(userEmail)
		if err := auth.ValidateEmail(email); err != nil {
			return fmt.Errorf("invalid email: %w", err)
		}
		role, err := parseRole(userRole)
		if err != nil {
			return err
		}

		password, err := promptNewPassword(email, "Enter password: ", "Confirm password: ")
		if err != nil {
			return err
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		existing, err := store.Users().GetByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("email '%s' already exists", email)
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		user := models.NewUser(email, role)
		user.DisplayName = strings.TrimSpace(userName)
		user.PasswordHash = hash
		user.ApprovalStatus = models.ApprovalApproved
		if err := store.Users().Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		fmt.Printf("\nUser created successfully:\n")
		fmt.Printf("  ID:    %s\n", user.ID)
		fmt.Printf("  Email: %s\n", user.Email)
		fmt.Printf("  Role:  %s\n", user.Role)
		return nil
	},
}

var userApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a pending account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setApproval(userEmail, models.ApprovalApproved)
	},
}

var userDenyCmd = &cobra.Command{
	Use:   "deny",
	Short: "Deny an account and revoke its sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setApproval(userEmail, models.ApprovalDenied)
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change an account's password",
	Long: `Change the password of an existing account. All sessions of the
account are revoked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		user, err := findUser(ctx, store, userEmail)
		if err != nil {
			return err
		}

		password, err := promptNewPassword(user.Email, "Enter new password: ", "Confirm new password: ")
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		user.PasswordHash = hash
		user.UpdatedAt = time.Now()
		if err := store.Users().Update(ctx, user); err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		if err := store.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
			// The password already changed; sessions expire on their own.
			PrintVerbose("Warning: could not revoke existing sessions: %v", err)
		}

		fmt.Printf("\nPassword changed successfully for '%s'.\n", user.Email)
		fmt.Println("All existing sessions have been revoked.")
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an account",
	Long: `Delete an account. Projects assigned to a deleted vendor become
unassigned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		user, err := findUser(ctx, store, userEmail)
		if err != nil {
			return err
		}
		if err := store.Users().Delete(ctx, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		fmt.Printf("User '%s' deleted.\n", user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd, userCreateCmd, userApproveCmd, userDenyCmd, userPasswdCmd, userDeleteCmd)

	userListCmd.Flags().StringVar(&listRole, "role", "", "filter by role: public, vendor or ets")
	userListCmd.Flags().StringVar(&userApproval, "approval", "", "filter by approval: pending, approved or denied")

	userCreateCmd.Flags().StringVar(&userRole, "role", "public", "role: public, vendor or ets")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")

	for _, c := range []*cobra.Command{userCreateCmd, userApproveCmd, userDenyCmd, userPasswdCmd, userDeleteCmd} {
		c.Flags().StringVar(&userEmail, "email", "", "account email (required)")
		c.MarkFlagRequired("email")
	}
}

func parseRole(s string) (models.Role, error) {
	role := models.Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("invalid role %q: must be public, vendor or ets", s)
	}
	return role, nil
}

func parseUserFilter(role, approval string) (storage.UserFilter, error) {
	var filter storage.UserFilter
	if role != "" {
		r, err := parseRole(role)
		if err != nil {
			return filter, err
		}
		filter.Role = r
	}
	if approval != "" {
		status, ok := models.ParseApprovalStatus(approval)
		if !ok {
			return filter, fmt.Errorf("invalid approval %q: must be pending, approved or denied", approval)
		}
		filter.ApprovalStatus = status
	}
	return filter, nil
}

func findUser(ctx context.Context, store storage.Storage, email string) (*models.User, error) {
	email = auth.NormalizeEmail(email)
	user, err := store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user '%s' not found", email)
	}
	return user, nil
}

func setApproval(email string, status models.ApprovalStatus) error {
	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	user, err := findUser(ctx, store, email)
	if err != nil {
		return err
	}

	user.ApprovalStatus = status
	user.UpdatedAt = time.Now()
	if err := store.Users().Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if status == models.ApprovalDenied {
		if err := store.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}

	fmt.Printf("User '%s' is now %s.\n", user.Email, status)
	return nil
}

// promptNewPassword reads and confirms a password that satisfies the policy.
func promptNewPassword(email, prompt, confirm string) (string, error) {
	password, err := promptPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if err := auth.ValidatePasswordForOrError(email, password); err != nil {
		return "", fmt.Errorf("invalid password: %w", err)
	}
	again, err := promptPassword(confirm)
	if err != nil {
		return "", fmt.Errorf("read password confirmation: %w", err)
	}
	if password != again {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := syscall.Stdin
	if term.IsTerminal(fd) {
		passwordBytes, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(passwordBytes), nil
	}

	// Piped input
	password, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(password), nil
}
