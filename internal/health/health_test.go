package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ponderpaw/readalong/internal/health"
)

func get(t *testing.T, h http.HandlerFunc, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := health.New()
	rec, body := get(t, h.Healthz, "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("body status = %v, want ok", body["status"])
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "playbook", Check: func(context.Context) error { return nil }},
	)
	rec, body := get(t, h.Readyz, "/readyz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	checks := body["checks"].(map[string]any)
	if checks["playbook"] != "ok" {
		t.Errorf("playbook check = %v, want ok", checks["playbook"])
	}
}

func TestReadyz_FailingCheckerReturns503(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "good", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "bad", Check: func(context.Context) error { return errors.New("boom") }},
	)
	rec, body := get(t, h.Readyz, "/readyz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body["status"] != "fail" {
		t.Errorf("body status = %v, want fail", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if checks["good"] != "ok" {
		t.Errorf("good check = %v, want ok", checks["good"])
	}
}

func TestStoryDirChecker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := health.StoryDir(dir).Check(context.Background()); err != nil {
		t.Errorf("StoryDir(existing) = %v, want nil", err)
	}
	if err := health.StoryDir(filepath.Join(dir, "missing")).Check(context.Background()); err == nil {
		t.Error("StoryDir(missing) = nil, want error")
	}
}

func TestRegister_MountsEndpoints(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	health.New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
