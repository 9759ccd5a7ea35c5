package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

const testPassword = "TestPassword123!"

// testServer creates a server over a temporary SQLite database.
func testServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ivvboard-test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	hub := watch.NewHub()
	cfg := &Config{
		Address:          ":0",
		JWTSecret:        []byte("test-jwt-secret-32-bytes-long!!!"),
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  24 * time.Hour,
		RateLimitPerIP:   1000,
		RateLimitPerUser: 1000,
		LockoutThreshold: 5,
		LockoutDuration:  time.Minute,
	}

	srv, err := New(cfg, store, reporting.NewService(store, hub), hub)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(srv.stop)
	return srv, store
}

// createTestUser stores an account with a cheap bcrypt hash.
func createTestUser(t *testing.T, store storage.Storage, email string, role models.Role, status models.ApprovalStatus) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.NewUser(email, role)
	user.PasswordHash = string(hash)
	user.ApprovalStatus = status
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func login(t *testing.T, srv *Server, email string) tokens {
	t.Helper()

	rec := do(t, srv, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d (body %s)", email, rec.Code, rec.Body)
	}
	var resp struct {
		Data tokens `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %s)", err, rec.Body)
	}
	return resp.Error.Code
}

func dataID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Data.ID
}

func TestNew_Validation(t *testing.T) {
	hub := watch.NewHub()
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "x.db"))
	svc := reporting.NewService(store, hub)

	tests := []struct {
		name  string
		cfg   *Config
		store storage.Storage
		svc   *reporting.Service
		sub   watch.Subscriber
	}{
		{"nil config", nil, store, svc, hub},
		{"nil storage", &Config{JWTSecret: []byte("s")}, nil, svc, hub},
		{"nil service", &Config{JWTSecret: []byte("s")}, store, nil, hub},
		{"nil subscriber", &Config{JWTSecret: []byte("s")}, store, svc, nil},
		{"empty secret", &Config{}, store, svc, hub},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg, tc.store, tc.svc, tc.sub); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := do(t, srv, "GET", path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestNotFound_JSON(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, "GET", "/api/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type = %q", ct)
	}
	if code := errorCode(t, rec); code != respond.CodeNotFound {
		t.Errorf("code = %q, want %q", code, respond.CodeNotFound)
	}
}

func TestRegister_ApprovalByRole(t *testing.T) {
	tests := []struct {
		role string
		want models.ApprovalStatus
	}{
		{"", models.ApprovalApproved},
		{"public", models.ApprovalApproved},
		{"vendor", models.ApprovalPending},
		{"ets", models.ApprovalPending},
	}

	for _, tc := range tests {
		t.Run("role "+tc.role, func(t *testing.T) {
			srv, _ := testServer(t)
			rec := do(t, srv, "POST", "/api/v1/auth/register", "", map[string]string{
				"email":    "someone@example.com",
				"password": testPassword,
				"role":     tc.role,
			})
			if rec.Code != http.StatusCreated {
				t.Fatalf("status = %d (body %s)", rec.Code, rec.Body)
			}
			var resp struct {
				Data struct {
					ApprovalStatus models.ApprovalStatus `json:"approval_status"`
				} `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Data.ApprovalStatus != tc.want {
				t.Errorf("approval = %q, want %q", resp.Data.ApprovalStatus, tc.want)
			}
		})
	}
}

func TestGate(t *testing.T) {
	srv, store := testServer(t)
	createTestUser(t, store, "citizen@example.com", models.RolePublic, models.ApprovalApproved)
	createTestUser(t, store, "pending@example.com", models.RoleVendor, models.ApprovalPending)
	createTestUser(t, store, "denied@example.com", models.RoleVendor, models.ApprovalDenied)
	createTestUser(t, store, "vendor@example.com", models.RoleVendor, models.ApprovalApproved)

	citizen := login(t, srv, "citizen@example.com").AccessToken
	pending := login(t, srv, "pending@example.com").AccessToken
	denied := login(t, srv, "denied@example.com").AccessToken
	vendor := login(t, srv, "vendor@example.com").AccessToken

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
		wantErr  string
	}{
		{"no token", "GET", "/api/v1/projects", "", http.StatusUnauthorized, respond.CodeUnauthorized},
		{"garbage token", "GET", "/api/v1/projects", "not-a-jwt", http.StatusUnauthorized, respond.CodeUnauthorized},
		{"public role", "GET", "/api/v1/projects", citizen, http.StatusForbidden, respond.CodeForbidden},
		{"pending vendor", "GET", "/api/v1/projects", pending, http.StatusForbidden, respond.CodePendingApproval},
		{"denied vendor", "GET", "/api/v1/projects", denied, http.StatusForbidden, respond.CodePendingApproval},
		{"vendor on staff route", "GET", "/api/v1/users", vendor, http.StatusForbidden, respond.CodeForbidden},
		{"vendor creating project", "POST", "/api/v1/projects", vendor, http.StatusForbidden, respond.CodeForbidden},
		{"approved vendor", "GET", "/api/v1/projects", vendor, http.StatusOK, ""},
		{"pending reads own account", "GET", "/api/v1/users/me", pending, http.StatusOK, ""},
		{"public directory without token", "GET", "/api/v1/public/projects", "", http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, tc.method, tc.path, tc.token, `{}`)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body)
			}
			if tc.wantErr != "" {
				if code := errorCode(t, rec); code != tc.wantErr {
					t.Errorf("code = %q, want %q", code, tc.wantErr)
				}
			}
		})
	}
}

func TestGate_UsesStoredRole(t *testing.T) {
	srv, store := testServer(t)
	staff := createTestUser(t, store, "staff@example.gov", models.RoleETS, models.ApprovalApproved)
	token := login(t, srv, "staff@example.gov").AccessToken

	if rec := do(t, srv, "GET", "/api/v1/users", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("before demotion: status = %d", rec.Code)
	}

	staff.Role = models.RoleVendor
	if err := store.Users().Update(context.Background(), staff); err != nil {
		t.Fatalf("update user: %v", err)
	}

	if rec := do(t, srv, "GET", "/api/v1/users", token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("after demotion: status = %d, want 403", rec.Code)
	}
}

func TestApprovalFlow(t *testing.T) {
	srv, store := testServer(t)
	createTestUser(t, store, "staff@example.gov", models.RoleETS, models.ApprovalApproved)
	staff := login(t, srv, "staff@example.gov").AccessToken

	rec := do(t, srv, "POST", "/api/v1/auth/register", "", map[string]string{
		"email":    "contractor@example.com",
		"password": testPassword,
		"role":     "vendor",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d (body %s)", rec.Code, rec.Body)
	}
	vendorID := dataID(t, rec)
	vendor := login(t, srv, "contractor@example.com").AccessToken

	if rec := do(t, srv, "GET", "/api/v1/projects", vendor, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("pending: status = %d, want 403", rec.Code)
	}

	rec = do(t, srv, "GET", "/api/v1/users?approval=pending", staff, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), vendorID) {
		t.Fatalf("pending list: status = %d (body %s)", rec.Code, rec.Body)
	}

	rec = do(t, srv, "PUT", "/api/v1/users/"+vendorID+"/approval", staff, map[string]string{"status": "approved"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status = %d (body %s)", rec.Code, rec.Body)
	}

	// The same token works once the stored account is approved.
	if rec := do(t, srv, "GET", "/api/v1/projects", vendor, nil); rec.Code != http.StatusOK {
		t.Errorf("approved: status = %d, want 200", rec.Code)
	}
}

const reportJSON = `{
	"report_month": "2025-06",
	"report_date": "2025-06-28T00:00:00Z",
	"background": "Statewide tax portal replacement.",
	"assessment": {"rating": "High", "description": "Conversion is behind."},
	"issues": [
		{"description": "Data conversion backlog", "impact": "High", "likelihood": "High", "date_raised": "2025-06-01T00:00:00Z"}
	],
	"schedule": {"baseline_date": "2026-01-01T00:00:00Z", "projected_date": "2026-03-01T00:00:00Z"},
	"financials": {"original_amount": "5000000", "paid_to_date": "1000000"},
	"scope": {"deliverables": [{"name": "Design", "status": "Completed"}]}
}`

func TestReportingWorkflow(t *testing.T) {
	srv, store := testServer(t)
	createTestUser(t, store, "staff@example.gov", models.RoleETS, models.ApprovalApproved)
	vendorUser := createTestUser(t, store, "vendor@example.com", models.RoleVendor, models.ApprovalApproved)
	createTestUser(t, store, "other@example.com", models.RoleVendor, models.ApprovalApproved)

	staff := login(t, srv, "staff@example.gov").AccessToken
	vendor := login(t, srv, "vendor@example.com").AccessToken
	other := login(t, srv, "other@example.com").AccessToken

	rec := do(t, srv, "POST", "/api/v1/projects", staff, map[string]string{
		"name":   "Tax Portal",
		"status": "Active",
		"budget": "5000000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: status = %d (body %s)", rec.Code, rec.Body)
	}
	projectID := dataID(t, rec)
	base := "/api/v1/projects/" + projectID

	rec = do(t, srv, "PUT", base+"/vendor", staff, map[string]string{"vendor_id": vendorUser.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign vendor: status = %d (body %s)", rec.Code, rec.Body)
	}

	if rec := do(t, srv, "POST", base+"/reports", other, reportJSON); rec.Code != http.StatusForbidden {
		t.Fatalf("unassigned vendor submit: status = %d, want 403", rec.Code)
	}
	if rec := do(t, srv, "GET", base, other, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("unassigned vendor read: status = %d, want 403", rec.Code)
	}

	rec = do(t, srv, "POST", base+"/reports", vendor, reportJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status = %d (body %s)", rec.Code, rec.Body)
	}
	var submitted struct {
		Data struct {
			Report struct {
				ID string `json:"id"`
			} `json:"report"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	reportID := submitted.Data.Report.ID

	if rec := do(t, srv, "POST", base+"/reports", vendor, reportJSON); rec.Code != http.StatusConflict {
		t.Errorf("duplicate month: status = %d, want 409", rec.Code)
	}

	rec = do(t, srv, "GET", base+"/reports/"+reportID, staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff read: status = %d", rec.Code)
	}

	rec = do(t, srv, "GET", base+"/reports/"+reportID+"/export?format=md", vendor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status = %d (body %s)", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("content disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rec.Body.String(), "Tax Portal") {
		t.Error("export does not name the project")
	}

	rec = do(t, srv, "GET", "/api/v1/public/projects", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Tax Portal") {
		t.Errorf("public directory: status = %d (body %s)", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), vendorUser.ID) {
		t.Error("public directory leaked the vendor id")
	}
}

func TestRefreshAndLogout(t *testing.T) {
	srv, store := testServer(t)
	createTestUser(t, store, "citizen@example.com", models.RolePublic, models.ApprovalApproved)
	tok := login(t, srv, "citizen@example.com")

	rec := do(t, srv, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": tok.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d (body %s)", rec.Code, rec.Body)
	}
	var resp struct {
		Data tokens `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The rotated-out token is no longer accepted.
	rec = do(t, srv, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": tok.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh: status = %d, want 401", rec.Code)
	}

	rec = do(t, srv, "POST", "/api/v1/auth/logout", resp.Data.AccessToken, map[string]string{"refresh_token": resp.Data.RefreshToken})
	if rec.Code != http.StatusOK && rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status = %d (body %s)", rec.Code, rec.Body)
	}

	rec = do(t, srv, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": resp.Data.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: status = %d, want 401", rec.Code)
	}
}

func TestRefresh_ReuseRevokesSessions(t *testing.T) {
	srv, store := testServer(t)
	createTestUser(t, store, "vendor@example.com", models.RoleVendor, models.ApprovalApproved)
	stolen := login(t, srv, "vendor@example.com")
	other := login(t, srv, "vendor@example.com")

	rec := do(t, srv, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": stolen.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d (body %s)", rec.Code, rec.Body)
	}
	var resp struct {
		Data tokens `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = do(t, srv, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": stolen.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: status = %d, want 401", rec.Code)
	}

	for name, token := range map[string]string{"replacement": resp.Data.RefreshToken, "other session": other.RefreshToken} {
		rec = do(t, srv, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": token})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s after reuse: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestLogin_Lockout(t *testing.T) {
	srv, store := testServer(t)
	createTestUser(t, store, "citizen@example.com", models.RolePublic, models.ApprovalApproved)

	for i := 0; i < 5; i++ {
		rec := do(t, srv, "POST", "/api/v1/auth/login", "", map[string]string{
			"email":    "citizen@example.com",
			"password": "wrong-password",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i, rec.Code)
		}
	}

	rec := do(t, srv, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "citizen@example.com",
		"password": testPassword,
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("locked login: status = %d, want 429", rec.Code)
	}
}
