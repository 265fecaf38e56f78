package instance

import "testing"

func TestGetIDPrefersEnvironment(t *testing.T) {
	t.Setenv("FINTRACK_WORKER_ID", " cron-a ")
	if got := GetID(); got != "cron-a" {
		t.Fatalf("expected cron-a, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("FINTRACK_WORKER_ID", "")
	if got := GetID(); got == "" {
		t.Fatalf("expected a non-empty id")
	}
}
