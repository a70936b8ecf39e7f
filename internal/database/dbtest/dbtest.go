// Package dbtest opens throwaway sqlite databases with the production schema.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/migration"
)

// New returns migrated connections backed by a private in-memory database.
func New(t testing.TB) *database.Connections {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	conns := &database.Connections{Writer: db, Reader: db}

	cfg := config.Config{Database: config.Database{Driver: "sqlite"}}
	mig, err := migration.New(cfg, conns, zap.NewNop())
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if err := mig.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return conns
}
