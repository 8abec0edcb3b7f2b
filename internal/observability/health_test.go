package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" || status.Service != serviceName {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }
	failing := func(ctx context.Context) (bool, error) { return false, errors.New("no credentials") }

	tests := []struct {
		name       string
		checks     map[string]HealthCheckFunc
		wantCode   int
		wantStatus string
	}{
		{"all healthy", map[string]HealthCheckFunc{"provider": ok, "cache": ok}, http.StatusOK, "ready"},
		{"one failing", map[string]HealthCheckFunc{"provider": failing, "cache": ok}, http.StatusServiceUnavailable, "not_ready"},
		{"nil check skipped", map[string]HealthCheckFunc{"provider": nil}, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}

			var status HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if status.Status != tt.wantStatus {
				t.Errorf("Expected status %q, got %q", tt.wantStatus, status.Status)
			}
			if dep, ok := status.Dependencies["provider"]; ok && dep.Status == "unhealthy" && dep.Message != "no credentials" {
				t.Errorf("Expected failure message to be reported, got %q", dep.Message)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", false)

	logger.Info().Msg("hidden")
	logger.Warn().Str("cache_key", "abc").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered at warn level")
	}
	if !strings.Contains(out, `"cache_key":"abc"`) {
		t.Errorf("Expected structured field in output, got %s", out)
	}
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger, id := WithRequestID(NewLogger(&buf, "info", false), "")
	if id == "" {
		t.Fatal("Expected a generated request ID")
	}

	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), id) {
		t.Errorf("Expected request ID %s in output %s", id, buf.String())
	}

	_, given := WithRequestID(NewLogger(&buf, "info", false), "req-1")
	if given != "req-1" {
		t.Errorf("Expected provided ID to be kept, got %s", given)
	}
}
