package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	store := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		t.Fatalf("migrate database: %v", err)
	}
	return store, func() { store.Close() }
}

func createTestUser(t *testing.T, store *SQLiteStorage, email string, role models.Role) *models.User {
	t.Helper()
	user := models.NewUser(email, role)
	user.ID = uuid.New().String()
	user.PasswordHash = "hash"
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createTestProject(t *testing.T, store *SQLiteStorage, name, vendorID string) *models.Project {
	t.Helper()
	project := models.NewProject(name, models.StatusOnTrack)
	project.ID = uuid.New().String()
	project.Budget = decimal.NewFromInt(10_000_000)
	project.Spent = decimal.NewFromInt(3_000_000)
	project.VendorID = vendorID
	if err := store.Projects().Create(context.Background(), project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func newTestReport(projectID, month string) *models.Report {
	now := time.Now()
	return &models.Report{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		ReportMonth: month,
		ReportDate:  now,
		Background:  "Background",
		Assessment:  models.Assessment{Rating: models.LevelMedium, Description: "ok"},
		Issues: []models.Issue{{
			ID:          uuid.New().String(),
			Description: "Data migration slipping",
			Impact:      models.LevelHigh,
			Likelihood:  models.LevelMedium,
			RiskRating:  5,
			DateRaised:  now.AddDate(0, 0, -10),
			Status:      models.IssueOpen,
		}},
		Schedule: models.Schedule{
			ProjectedDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		Financials: models.Financials{
			OriginalAmount: decimal.NewFromInt(1000),
			PaidToDate:     decimal.NewFromInt(250),
		},
		Scope: models.ScopeStatus{
			Deliverables: []models.Deliverable{{ID: "d1", Name: "Design", Status: models.DeliverableCompleted}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStorage_OpenClose(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store.db == nil {
		t.Fatal("database should be open")
	}
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tables := []string{"users", "projects", "reports", "refresh_tokens", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s should exist: %v", table, err)
		}
	}

	// Running again is a no-op.
	if err := store.Migrate(); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

func TestUserRepository_CRUD(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, store, "vendor@example.com", models.RoleVendor)

	got, err := store.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil || got.Email != user.Email {
		t.Fatalf("got %+v, want email %s", got, user.Email)
	}
	if got.ApprovalStatus != models.ApprovalPending {
		t.Errorf("approval = %s, want pending", got.ApprovalStatus)
	}

	got, err = store.Users().GetByEmail(ctx, "VENDOR@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatal("email lookup should be case-insensitive")
	}

	got.ApprovalStatus = models.ApprovalApproved
	got.DisplayName = "Acme"
	got.UpdatedAt = time.Now()
	if err := store.Users().Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.Users().GetByID(ctx, user.ID)
	if got.ApprovalStatus != models.ApprovalApproved || got.DisplayName != "Acme" {
		t.Errorf("update not persisted: %+v", got)
	}

	count, err := store.Users().Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("count = %d, %v; want 1", count, err)
	}

	if err := store.Users().Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = store.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if got != nil {
		t.Error("user should be deleted")
	}
	if err := store.Users().Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting a missing user: err = %v, want ErrNotFound", err)
	}
	if err := store.Users().Update(ctx, user); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating a missing user: err = %v, want ErrNotFound", err)
	}
}

func TestUserRepository_ListFilter(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	createTestUser(t, store, "a@example.com", models.RolePublic)
	createTestUser(t, store, "b@example.com", models.RoleVendor)
	createTestUser(t, store, "c@example.com", models.RoleETS)

	tests := []struct {
		name   string
		filter UserFilter
		want   int
	}{
		{"all", UserFilter{}, 3},
		{"pending", UserFilter{ApprovalStatus: models.ApprovalPending}, 2},
		{"approved", UserFilter{ApprovalStatus: models.ApprovalApproved}, 1},
		{"vendors", UserFilter{Role: models.RoleVendor}, 1},
		{"pending ets", UserFilter{Role: models.RoleETS, ApprovalStatus: models.ApprovalPending}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := store.Users().List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(users) != tt.want {
				t.Errorf("got %d users, want %d", len(users), tt.want)
			}
		})
	}
}

func TestProjectRepository_CRUD(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Payroll Modernization", "")

	got, err := store.Projects().GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil {
		t.Fatal("project not found")
	}
	if !got.Budget.Equal(decimal.NewFromInt(10_000_000)) {
		t.Errorf("budget = %s", got.Budget)
	}
	if got.StatusColor != "green" {
		t.Errorf("status color = %s, want green", got.StatusColor)
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got.SetStatus(models.StatusCritical)
	got.StartDate = &start
	got.UpdatedAt = time.Now()
	if err := store.Projects().Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ = store.Projects().GetByName(ctx, "Payroll Modernization")
	if got == nil || got.Status != models.StatusCritical || got.StatusColor != "red" {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.StartDate == nil || !got.StartDate.Equal(start) {
		t.Errorf("start date = %v, want %v", got.StartDate, start)
	}

	missing, err := store.Projects().GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing project: got %v, %v", missing, err)
	}
}

func TestProjectRepository_ListByVendor(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	vendor := createTestUser(t, store, "v@example.com", models.RoleVendor)
	createTestProject(t, store, "Alpha", vendor.ID)
	createTestProject(t, store, "Beta", "")

	all, err := store.Projects().List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("list = %d, %v; want 2", len(all), err)
	}

	mine, err := store.Projects().ListByVendor(ctx, vendor.ID)
	if err != nil {
		t.Fatalf("list by vendor: %v", err)
	}
	if len(mine) != 1 || mine[0].Name != "Alpha" {
		t.Errorf("got %v, want only Alpha", mine)
	}
}

func TestReportRepository_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Alpha", "")
	report := newTestReport(project.ID, "2025-03")
	baseline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var seen *time.Time
	called := false
	err := store.Reports().Create(ctx, report, func(b *time.Time) error {
		called = true
		seen = b
		report.Schedule.BaselineDate = baseline
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !called {
		t.Fatal("prepare was not called")
	}
	if seen != nil {
		t.Errorf("first report should see no baseline, got %v", seen)
	}

	got, err := store.Reports().GetByID(ctx, project.ID, report.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v, %v", got, err)
	}
	if !got.Schedule.BaselineDate.Equal(baseline) {
		t.Errorf("baseline = %v, want %v", got.Schedule.BaselineDate, baseline)
	}
	if len(got.Issues) != 1 || got.Issues[0].RiskRating != 5 {
		t.Errorf("issues = %+v", got.Issues)
	}
	if !got.Financials.PaidToDate.Equal(decimal.NewFromInt(250)) {
		t.Errorf("paid to date = %s", got.Financials.PaidToDate)
	}
	if len(got.Scope.Deliverables) != 1 {
		t.Errorf("deliverables = %+v", got.Scope.Deliverables)
	}

	other, err := store.Reports().GetByID(ctx, "other-project", report.ID)
	if err != nil || other != nil {
		t.Errorf("report must be scoped to its project, got %v, %v", other, err)
	}
}

func TestReportRepository_BaselinePassedToLaterReports(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Alpha", "")
	baseline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := newTestReport(project.ID, "2025-03")
	first.Schedule.BaselineDate = baseline
	if err := store.Reports().Create(ctx, first, nil); err != nil {
		t.Fatalf("create first: %v", err)
	}

	second := newTestReport(project.ID, "2025-04")
	var seen *time.Time
	err := store.Reports().Create(ctx, second, func(b *time.Time) error {
		seen = b
		return nil
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if seen == nil || !seen.Equal(baseline) {
		t.Errorf("second report saw baseline %v, want %v", seen, baseline)
	}
}

func TestReportRepository_DuplicateMonth(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Alpha", "")
	if err := store.Reports().Create(ctx, newTestReport(project.ID, "2025-03"), nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.Reports().Create(ctx, newTestReport(project.ID, "2025-03"), nil)
	if !errors.Is(err, ErrDuplicateMonth) {
		t.Errorf("err = %v, want ErrDuplicateMonth", err)
	}

	// Same month on another project is fine.
	other := createTestProject(t, store, "Beta", "")
	if err := store.Reports().Create(ctx, newTestReport(other.ID, "2025-03"), nil); err != nil {
		t.Errorf("other project: %v", err)
	}
}

func TestReportRepository_PrepareErrorRollsBack(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Alpha", "")
	wantErr := errors.New("invalid")
	err := store.Reports().Create(ctx, newTestReport(project.ID, "2025-03"), func(*time.Time) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	reports, err := store.Reports().ListByProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("got %d reports, want 0", len(reports))
	}
}

func TestReportRepository_UpdateListDelete(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Alpha", "")
	march := newTestReport(project.ID, "2025-03")
	april := newTestReport(project.ID, "2025-04")
	for _, r := range []*models.Report{march, april} {
		if err := store.Reports().Create(ctx, r, nil); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := store.Reports().ListByProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ReportMonth != "2025-04" {
		t.Fatalf("want newest month first, got %v", list)
	}

	march.Background = "Revised"
	if err := store.Reports().Update(ctx, march, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Reports().GetByID(ctx, project.ID, march.ID)
	if got.Background != "Revised" {
		t.Errorf("background = %q", got.Background)
	}

	march.ReportMonth = "2025-04"
	if err := store.Reports().Update(ctx, march, nil); !errors.Is(err, ErrDuplicateMonth) {
		t.Errorf("moving onto an existing month: err = %v", err)
	}

	if err := store.Reports().Delete(ctx, project.ID, april.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Reports().Delete(ctx, project.ID, april.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting a missing report: err = %v, want ErrNotFound", err)
	}
	april.ReportMonth = "2025-05"
	if err := store.Reports().Update(ctx, april, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating a missing report: err = %v, want ErrNotFound", err)
	}
}

func TestProjectDeleteCascadesReports(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	project := createTestProject(t, store, "Alpha", "")
	report := newTestReport(project.ID, "2025-03")
	if err := store.Reports().Create(ctx, report, nil); err != nil {
		t.Fatalf("create report: %v", err)
	}

	if err := store.Projects().Delete(ctx, project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	got, err := store.Reports().GetByID(ctx, project.ID, report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got != nil {
		t.Error("report should be deleted with its project")
	}
}

func TestVendorDeleteUnassignsProject(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	vendor := createTestUser(t, store, "v@example.com", models.RoleVendor)
	project := createTestProject(t, store, "Alpha", vendor.ID)

	if err := store.Users().Delete(ctx, vendor.ID); err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	got, _ := store.Projects().GetByID(ctx, project.ID)
	if got.VendorID != "" {
		t.Errorf("vendor id = %q, want empty", got.VendorID)
	}
}

func TestTokenRepository(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, store, "a@example.com", models.RolePublic)
	token, plain, err := models.NewRefreshToken(user.ID, time.Hour)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := store.Tokens().Create(ctx, token); err != nil {
		t.Fatalf("create token: %v", err)
	}

	got, err := store.Tokens().GetByTokenHash(ctx, models.HashToken(plain))
	if err != nil || got == nil {
		t.Fatalf("get token: %v, %v", got, err)
	}
	if !got.IsValid() {
		t.Error("token should be valid")
	}

	if err := store.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	got, _ = store.Tokens().GetByTokenHash(ctx, token.TokenHash)
	if got.IsValid() || got.RevokedAt == nil {
		t.Error("token should be revoked")
	}

	expired, _, _ := models.NewRefreshToken(user.ID, -time.Minute)
	if err := store.Tokens().Create(ctx, expired); err != nil {
		t.Fatalf("create expired token: %v", err)
	}

	n, err := store.Tokens().DeleteExpired(ctx)
	if err != nil || n != 1 {
		t.Errorf("delete expired = %d, %v; want 1", n, err)
	}
	if got, _ := store.Tokens().GetByTokenHash(ctx, token.TokenHash); got == nil {
		t.Error("revoked but unexpired token should be kept")
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, store, "a@example.com", models.RoleVendor)
	first, _, _ := models.NewRefreshToken(user.ID, time.Hour)
	if err := store.Tokens().Create(ctx, first); err != nil {
		t.Fatalf("create token: %v", err)
	}

	second, _, _ := models.NewRefreshToken(user.ID, time.Hour)
	if err := store.Tokens().Rotate(ctx, first.TokenHash, second); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if second.ID == "" {
		t.Fatal("rotate should assign the replacement ID")
	}

	spent, _ := store.Tokens().GetByTokenHash(ctx, first.TokenHash)
	if !spent.WasRotated() || spent.ReplacedBy != second.ID {
		t.Errorf("spent token = %+v, want replaced by %s", spent, second.ID)
	}
	if got, _ := store.Tokens().GetByTokenHash(ctx, second.TokenHash); got == nil || !got.IsValid() {
		t.Errorf("replacement = %+v, want valid", got)
	}

	third, _, _ := models.NewRefreshToken(user.ID, time.Hour)
	if err := store.Tokens().Rotate(ctx, first.TokenHash, third); !errors.Is(err, ErrTokenInactive) {
		t.Errorf("rotate spent token: err = %v, want ErrTokenInactive", err)
	}
	if got, _ := store.Tokens().GetByTokenHash(ctx, third.TokenHash); got != nil {
		t.Error("failed rotation must not store the replacement")
	}

	if err := store.Tokens().Rotate(ctx, "unknown", third); !errors.Is(err, ErrTokenInactive) {
		t.Errorf("rotate unknown token: err = %v, want ErrTokenInactive", err)
	}
}

func TestEnsureStaffUser(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	password, err := store.EnsureStaffUser("staff@example.com")
	if err != nil {
		t.Fatalf("ensure staff: %v", err)
	}
	if password == "" {
		t.Fatal("expected generated password")
	}

	staff, _ := store.Users().GetByEmail(ctx, "staff@example.com")
	if staff == nil || !staff.IsETS() || !staff.IsApproved() {
		t.Fatalf("staff user = %+v", staff)
	}

	password, err = store.EnsureStaffUser("other@example.com")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if password != "" {
		t.Error("no user should be created when users exist")
	}
}
