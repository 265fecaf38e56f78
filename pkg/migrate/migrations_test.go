package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/fintrack-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestPaymentsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_payments")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"external_reference TEXT UNIQUE",
		"payment_id BIGINT NOT NULL UNIQUE REFERENCES payments(id)",
		"CREATE TABLE IF NOT EXISTS gateway_events",
		"event_id TEXT PRIMARY KEY",
		"CHECK (final_amount >= 0)",
		"DROP TABLE IF EXISTS payments",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCampaignsMigrationGuardsUsageCap(t *testing.T) {
	content := readMigration(t, "create_campaigns")
	checks := []string{
		"code TEXT NOT NULL UNIQUE",
		"CHECK (usage_cap IS NULL OR usage_count <= usage_cap)",
		"DROP TABLE IF EXISTS campaigns",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Table!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refund_table.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}
