// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-mailer/internal/db/migrations"
	"github.com/unclebandit/campaign-mailer/internal/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Open connects to the store and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db: empty DSN for driver %s", driver)
	}
	if driver == DriverSQLite && !strings.Contains(dsn, "_journal_mode") && dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_journal_mode=WAL&_busy_timeout=5000"
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}

	switch driver {
	case DriverSQLite:
		// one writer; also keeps ":memory:" on a single database
		conn.SetMaxOpenConns(1)
	default:
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: ping %s: %w", driver, err)
	}

	logger.Named("db").Info("✅ Connected to database", zap.String("driver", driver))
	return conn, nil
}

// Migrate applies every embedded migration for driver that has not been
// recorded in schema_migrations yet.
func Migrate(ctx context.Context, conn *sql.DB, driver string) error {
	var fsys fs.FS
	var dir string
	switch driver {
	case DriverPostgres:
		fsys, dir = migrations.Postgres, "postgres"
	case DriverSQLite:
		fsys, dir = migrations.SQLite, "sqlite"
	default:
		return fmt.Errorf("db: no migrations for driver %s", driver)
	}

	if _, err := conn.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version    TEXT PRIMARY KEY,
            applied_at TIMESTAMP NOT NULL
        )`); err != nil {
		return fmt.Errorf("db: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("db: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	log := logger.Named("db")
	for _, name := range names {
		var exists int
		err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db: check migration %s: %w", name, err)
		}
		if exists > 0 {
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("db: read %s: %w", name, err)
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: apply %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, name, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Info("applied migration", zap.String("version", name))
	}
	return nil
}

// OpenMemory opens a migrated in-memory SQLite store for tests.
func OpenMemory(ctx context.Context) (*sql.DB, error) {
	conn, err := Open(ctx, DriverSQLite, ":memory:")
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, conn, DriverSQLite); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
