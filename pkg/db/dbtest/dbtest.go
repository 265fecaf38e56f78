// Package dbtest opens isolated in-memory sqlite databases for repository and
// service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/db/models"
)

// Open returns a client backed by a private sqlite database with every model
// migrated. The pool is capped at one connection so write transactions
// serialize the way row locks do on postgres.
func Open(t *testing.T) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:ft_%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db.FromGorm(conn)
}
