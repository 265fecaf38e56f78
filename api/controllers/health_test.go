package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/fintrack-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	cfg := &config.Config{}
	handler := HealthReady(cfg, stubPinger{}, stubPinger{err: errors.New("connection refused")}, nil)
	resp := httptest.NewRecorder()
	handler(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestHealthReadyOK(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	handler := HealthReady(cfg, stubPinger{}, stubPinger{}, nil)
	resp := httptest.NewRecorder()
	handler(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Fintrack-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}
