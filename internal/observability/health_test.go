package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadinessHandler_AllHealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"browser":    func(ctx context.Context) (bool, error) { return true, nil },
		"credential": func(ctx context.Context) (bool, error) { return true, nil },
	}

	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Status != "ready" {
		t.Errorf("Expected 'ready', got '%s'", status.Status)
	}
	if len(status.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(status.Dependencies))
	}
}

func TestReadinessHandler_Unhealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"browser":    func(ctx context.Context) (bool, error) { return true, nil },
		"credential": func(ctx context.Context) (bool, error) { return false, errors.New("no API key") },
	}

	rec := httptest.NewRecorder()
	ReadinessHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Status != "not_ready" {
		t.Errorf("Expected 'not_ready', got '%s'", status.Status)
	}
	dep := status.Dependencies["credential"]
	if dep.Status != "unhealthy" || dep.Message != "no API key" {
		t.Errorf("Unexpected credential status: %+v", dep)
	}
}

func TestRunChecks_SkipsNil(t *testing.T) {
	deps, ok := RunChecks(context.Background(), map[string]HealthCheckFunc{"audio": nil})
	if !ok {
		t.Error("Expected nil checks to be ignored")
	}
	if len(deps) != 0 {
		t.Errorf("Expected no dependency entries, got %d", len(deps))
	}
}
