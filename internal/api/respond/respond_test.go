package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEnvelopes(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, []string{"a"})
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":["a"]}` {
		t.Errorf("body = %s", got)
	}

	rec = httptest.NewRecorder()
	Error(rec, http.StatusConflict, CodeConflict, "report for this month already exists")
	var body struct {
		Error Problem `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusConflict || body.Error.Code != CodeConflict {
		t.Errorf("got %d %+v", rec.Code, body.Error)
	}

	rec = httptest.NewRecorder()
	NoContent(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("no content: %d %q", rec.Code, rec.Body)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
		wantCode   string
	}{
		{"valid", `{"name":"Tax Portal"}`, true, 0, ""},
		{"malformed", `{"name":`, false, http.StatusBadRequest, CodeBadRequest},
		{"wrong type", `{"name":5}`, false, http.StatusBadRequest, CodeBadRequest},
		{"too large", `{"name":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, false, http.StatusRequestEntityTooLarge, CodeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst struct {
				Name string `json:"name"`
			}

			ok := Decode(rec, req, &dst)
			if ok != tt.wantOK {
				t.Fatalf("Decode = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				if dst.Name != "Tax Portal" {
					t.Errorf("name = %q", dst.Name)
				}
				return
			}
			if rec.Code != tt.wantStatus || !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Errorf("got %d %s", rec.Code, rec.Body)
			}
		})
	}
}
