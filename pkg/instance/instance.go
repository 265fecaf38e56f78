package instance

import (
	"os"
	"strings"
)

const defaultID = "worker-0"

// GetID names this process among replicas of the same binary. It prefers
// FINTRACK_WORKER_ID and falls back to the hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("FINTRACK_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
