package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				display_name TEXT,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'public',
				approval_status TEXT NOT NULL DEFAULT 'approved',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT UNIQUE NOT NULL,
				status TEXT NOT NULL,
				status_color TEXT NOT NULL,
				description TEXT,
				department TEXT,
				start_date DATETIME,
				end_date DATETIME,
				budget TEXT NOT NULL DEFAULT '0',
				spent TEXT NOT NULL DEFAULT '0',
				vendor_id TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (vendor_id) REFERENCES users(id) ON DELETE SET NULL
			);

			-- Sections are stored as JSON documents; baseline_date is lifted
			-- out so the established baseline can be read without decoding.
			CREATE TABLE IF NOT EXISTS reports (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				report_month TEXT NOT NULL,
				report_date DATETIME NOT NULL,
				background TEXT,
				assessment_json TEXT NOT NULL,
				issues_json TEXT NOT NULL,
				schedule_json TEXT NOT NULL,
				financials_json TEXT NOT NULL,
				scope_json TEXT NOT NULL,
				baseline_date DATETIME NOT NULL,
				submitted_by TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (project_id, report_month),
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS refresh_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				token_hash TEXT UNIQUE NOT NULL,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				revoked INTEGER NOT NULL DEFAULT 0,
				revoked_at DATETIME,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_users_role ON users(role, approval_status);
			CREATE INDEX IF NOT EXISTS idx_projects_vendor ON projects(vendor_id);
			CREATE INDEX IF NOT EXISTS idx_reports_project ON reports(project_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
		`,
	},
	{
		Version: 2,
		Name:    "refresh_token_rotation",
		Up: `
			ALTER TABLE refresh_tokens ADD COLUMN replaced_by TEXT NOT NULL DEFAULT '';
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
