package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"count": 42})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["count"] != 42 {
		t.Errorf("count = %d, want 42", resp["count"])
	}
}

func TestAllowMethods(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if !AllowMethods(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.MethodPost) {
		t.Error("POST should be allowed")
	}

	rec = httptest.NewRecorder()
	if AllowMethods(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.MethodPost, http.MethodDelete) {
		t.Error("GET should be rejected")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != "POST, DELETE" {
		t.Errorf("Allow = %q, want %q", got, "POST, DELETE")
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		Window int `json:"window"`
	}

	tests := []struct {
		name   string
		input  string
		ok     bool
		window int
	}{
		{"valid", `{"window": 5}`, true, 5},
		{"unknown field", `{"window": 5, "extra": 1}`, false, 0},
		{"trailing data", `{"window": 5} {}`, false, 0},
		{"malformed", `{"window":`, false, 0},
		{"too large", `{"window": 5, "pad": "` + strings.Repeat("x", MaxBodyBytes) + `"}`, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var b body
			if got := DecodeJSON(rec, req, &b); got != tt.ok {
				t.Fatalf("DecodeJSON() = %v, want %v (%s)", got, tt.ok, rec.Body.String())
			}
			if !tt.ok && rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if tt.ok && b.Window != tt.window {
				t.Errorf("window = %d, want %d", b.Window, tt.window)
			}
		})
	}
}
