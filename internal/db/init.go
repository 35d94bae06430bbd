// Package db opens the SQL database behind the structured store and keeps
// its schema in place.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/atinyakov/estakaadi/internal/models"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// ErrUnsupported reports that no structured store is available in this
// environment, so callers should fall back to the flat document.
var ErrUnsupported = errors.New("structured storage unsupported")

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// Open connects to driver at dsn, pings it and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	switch driver {
	case DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			return nil, Dialect{}, fmt.Errorf("open sqlite: database path is required")
		}
		if !strings.Contains(dsn, "?") && !strings.HasPrefix(dsn, "file:") {
			dsn = filepath.Clean(dsn) + "?" + sqlitePragmas
		}
		sqlDB, err = sql.Open("sqlite", dsn)
		if err == nil {
			// One writer at a time; every store call runs inside its own tx.
			sqlDB.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		sqlDB, err = sql.Open("postgres", dsn)
	case "", DriverNone:
		return nil, Dialect{}, ErrUnsupported
	default:
		return nil, Dialect{}, fmt.Errorf("%w: unknown driver %q", ErrUnsupported, driver)
	}
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := Migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, Dialect{}, err
	}

	return sqlDB, Dialect{Driver: driver}, nil
}

// Schema returns the DDL statements for every kind: an id primary key, the
// JSON body, and one ix_ column plus index per declared secondary index.
func Schema() []string {
	var stmts []string
	for _, k := range models.AllKinds {
		cols := []string{"id TEXT PRIMARY KEY", "body TEXT NOT NULL"}
		for _, ix := range models.IndexesFor(k) {
			cols = append(cols, IndexColumn(ix.Name)+" TEXT")
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", k, strings.Join(cols, ", ")))
		for _, ix := range models.IndexesFor(k) {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s ON %s (%s)",
				k, IndexColumn(ix.Name), k, IndexColumn(ix.Name)))
		}
	}
	return stmts
}

// IndexColumn is the column holding the value of the named index.
func IndexColumn(index string) string {
	return "ix_" + index
}

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, sqlDB *sql.DB) error {
	for _, stmt := range Schema() {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
