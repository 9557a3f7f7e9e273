package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names a supported database driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type Config struct {
	Driver           Dialect
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is a database/sql handle plus the dialect it speaks. Postgres handles also
// keep the pgx pool they were opened from.
type DB struct {
	*sql.DB
	Dialect Dialect
	pool    *pgxpool.Pool
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", cfg.Driver)

	var db *DB
	switch cfg.Driver {
	case Postgres:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}
		// Wrap pool as *sql.DB so both drivers share one code path
		db = &DB{DB: stdlib.OpenDBFromPool(pool), Dialect: Postgres, pool: pool}
	case SQLite:
		sdb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			return nil, err
		}
		// one writer; sqlite serializes anyway and in-memory databases are per connection
		sdb.SetMaxOpenConns(1)
		db = &DB{DB: sdb, Dialect: SQLite}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := db.migrate(ctx); err != nil {
		Close(db, logger)
		logger.Error("failed to migrate database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return db, nil
}

func openPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docrender"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	return pgxpool.NewWithConfig(ctx, pc)
}

// Close closes the database connections gracefully
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	logger.Info("closing database connections")
	if err := db.DB.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

var schema = map[Dialect][]string{
	Postgres: {
		`CREATE TABLE IF NOT EXISTS conversion_attempt (
			id            UUID PRIMARY KEY,
			cache_key     TEXT NOT NULL,
			format        TEXT NOT NULL,
			source_path   TEXT NOT NULL,
			status        TEXT NOT NULL,
			stage         TEXT,
			reason        TEXT,
			error_message TEXT,
			pages         INTEGER NOT NULL DEFAULT 0,
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS conversion_attempt_key_idx ON conversion_attempt (cache_key, started_at DESC)`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS conversion_attempt (
			id            TEXT PRIMARY KEY,
			cache_key     TEXT NOT NULL,
			format        TEXT NOT NULL,
			source_path   TEXT NOT NULL,
			status        TEXT NOT NULL,
			stage         TEXT,
			reason        TEXT,
			error_message TEXT,
			pages         INTEGER NOT NULL DEFAULT 0,
			started_at    DATETIME NOT NULL,
			finished_at   DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS conversion_attempt_key_idx ON conversion_attempt (cache_key, started_at DESC)`,
	},
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema[db.Dialect] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
