package db_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/estakaadi/internal/db"
	"github.com/atinyakov/estakaadi/internal/models"
)

func TestOpen_ErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		driver     string
		dsn        string
		wantSubstr string
	}{
		{"postgres unreachable", db.DriverPostgres, "host=127.0.0.1 port=1 sslmode=disable connect_timeout=1", "ping postgres"},
		{"sqlite without path", db.DriverSQLite, "", "database path is required"},
		{"sqlite missing directory", db.DriverSQLite, filepath.Join(t.TempDir(), "missing", "x.db"), "sqlite"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := db.Open(context.Background(), tc.driver, tc.dsn)
			if err == nil {
				t.Fatalf("Open(%q, %q) did not return error", tc.driver, tc.dsn)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("Open(%q, %q) error = %q; want substring %q", tc.driver, tc.dsn, err.Error(), tc.wantSubstr)
			}
		})
	}
}

func TestOpen_Unsupported(t *testing.T) {
	for _, driver := range []string{"", db.DriverNone, "mysql"} {
		_, _, err := db.Open(context.Background(), driver, "whatever")
		if !errors.Is(err, db.ErrUnsupported) {
			t.Errorf("Open(%q) error = %v; want ErrUnsupported", driver, err)
		}
	}
}

func TestOpen_SQLiteCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.db")
	sqlDB, dialect, err := db.Open(context.Background(), db.DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sqlDB.Close()

	if dialect.Driver != db.DriverSQLite {
		t.Errorf("dialect = %q; want sqlite", dialect.Driver)
	}
	for _, k := range models.AllKinds {
		var n int
		if err := sqlDB.QueryRow("SELECT COUNT(*) FROM " + string(k)).Scan(&n); err != nil {
			t.Errorf("table %s: %v", k, err)
		}
	}
	if _, err := sqlDB.Exec("SELECT id, body, ix_user, ix_date FROM notes"); err != nil {
		t.Errorf("notes index columns: %v", err)
	}

	// Reopening an existing file is a no-op migration.
	again, _, err := db.Open(context.Background(), db.DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestSchema_IndexColumns(t *testing.T) {
	var gallery string
	for _, stmt := range db.Schema() {
		if strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS gallery ") {
			gallery = stmt
		}
	}
	for _, col := range []string{"ix_category TEXT", "ix_company TEXT", "ix_user TEXT"} {
		if !strings.Contains(gallery, col) {
			t.Errorf("gallery table %q lacks %q", gallery, col)
		}
	}
}

func TestMigrate_PropagatesError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).
		WillReturnError(errors.New("disk full"))

	err = db.Migrate(context.Background(), sqlDB)
	if err == nil || !strings.Contains(err.Error(), "create schema") {
		t.Fatalf("Migrate error = %v; want create schema failure", err)
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT body FROM notes WHERE ix_user = ? AND id = ?"
	if got := (db.Dialect{Driver: db.DriverSQLite}).Rebind(q); got != q {
		t.Errorf("sqlite Rebind = %q", got)
	}
	want := "SELECT body FROM notes WHERE ix_user = $1 AND id = $2"
	if got := (db.Dialect{Driver: db.DriverPostgres}).Rebind(q); got != want {
		t.Errorf("postgres Rebind = %q; want %q", got, want)
	}
}
