// Package migration applies the embedded goose migrations that create the
// order partitions, the order registry and the users table.
package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var migrationsFS embed.FS

// Module provides the migrator to CLI commands.
var Module = fx.Provide(New)

var gooseDialects = map[string]string{
	"postgres": "postgres",
	"pg":       "postgres",
	"mysql":    "mysql",
	"sqlite":   "sqlite3",
	"sqlite3":  "sqlite3",
}

// Migrator runs goose against the writer connection.
type Migrator struct {
	db     *bun.DB
	logger *zap.Logger
}

// New configures goose for the database driver. goose keeps its dialect and
// filesystem in package state, so only one Migrator should run at a time.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, ok := gooseDialects[cfg.Database.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported goose dialect for driver %s", cfg.Database.Driver)
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: conns.Writer, logger: logger}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	err := goose.UpContext(ctx, m.db.DB, migrationsDir)
	if nothingToDo(err) {
		m.logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	m.logger.Info("migrations applied")
	return nil
}

// Down rolls back steps migrations (at least one), or everything when all is set.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		err := goose.DownToContext(ctx, m.db.DB, migrationsDir, 0)
		if err != nil && !nothingToDo(err) {
			return fmt.Errorf("migrate down: %w", err)
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))
		return nil
	}

	steps = max(steps, 1)
	for done := 0; done < steps; done++ {
		current, err := m.Version()
		if err != nil {
			return err
		}
		if current == 0 {
			m.logger.Info("no migrations left to roll back", zap.Int("rolled_back", done))
			return nil
		}
		err = goose.DownContext(ctx, m.db.DB, migrationsDir)
		if nothingToDo(err) {
			m.logger.Info("no migrations left to roll back", zap.Int("rolled_back", done))
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	m.logger.Info("migrations rolled back", zap.Int("steps", steps))
	return nil
}

// Version reports the most recently applied migration version.
func (m *Migrator) Version() (int64, error) {
	v, err := goose.GetDBVersion(m.db.DB)
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return v, nil
}

func nothingToDo(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}
	return strings.Contains(err.Error(), "no migrations")
}
