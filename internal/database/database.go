// Package database opens the shared bun handles every store in the process
// uses. Nothing else opens its own connection.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

const pingTimeout = 5 * time.Second

// Connections bundles the writer and reader handles. Reader is the writer
// itself unless a distinct replica DSN is configured.
type Connections struct {
	Writer *bun.DB
	Reader *bun.DB
}

// Module registers the database connections with Fx.
var Module = fx.Provide(New)

type driver struct {
	dialect func() schema.Dialect
	open    func(dsn string) (*sql.DB, error)
	// singleWriter drivers cannot take a dedicated reader or concurrent writers.
	singleWriter bool
}

var drivers = map[string]driver{
	"postgres": {
		dialect: func() schema.Dialect { return pgdialect.New() },
		open: func(dsn string) (*sql.DB, error) {
			return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
		},
	},
	"mysql": {
		dialect: func() schema.Dialect { return mysqldialect.New() },
		open:    func(dsn string) (*sql.DB, error) { return sql.Open("mysql", dsn) },
	},
	"sqlite": {
		dialect:      func() schema.Dialect { return sqlitedialect.New() },
		open:         func(dsn string) (*sql.DB, error) { return sql.Open("sqlite3", dsn) },
		singleWriter: true,
	},
}

// New opens the writer pool and, when configured, a separate reader pool.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Connections, error) {
	conns, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conns.Ping(ctx); err != nil {
				return err
			}
			logger.Info("database connected",
				zap.String("driver", cfg.Database.Driver),
				zap.Bool("dedicated_reader", conns.Reader != conns.Writer),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("closing database connections")
			return conns.Close()
		},
	})
	return conns, nil
}

// Open builds the handles without lifecycle wiring.
func Open(cfg config.Database) (*Connections, error) {
	drv, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	writer, err := openPool(drv, cfg, cfg.WriterDSN)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	if drv.singleWriter {
		writer.SetMaxOpenConns(1)
	}

	conns := &Connections{Writer: writer, Reader: writer}
	if cfg.ReaderDSN != "" && cfg.ReaderDSN != cfg.WriterDSN && !drv.singleWriter {
		reader, err := openPool(drv, cfg, cfg.ReaderDSN)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
		conns.Reader = reader
	}
	return conns, nil
}

func openPool(drv driver, cfg config.Database, dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}
	sqldb, err := drv.open(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	return bun.NewDB(sqldb, drv.dialect()), nil
}

// Ping checks both handles within a short deadline.
func (c *Connections) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.Writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if c.Reader != c.Writer {
		if err := c.Reader.PingContext(ctx); err != nil {
			return fmt.Errorf("ping reader: %w", err)
		}
	}
	return nil
}

// Close releases both pools.
func (c *Connections) Close() error {
	err := c.Writer.Close()
	if c.Reader != c.Writer {
		err = errors.Join(err, c.Reader.Close())
	}
	return err
}
