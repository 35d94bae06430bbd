// Package repository provides the structured-store backend: one SQL table
// per kind, every operation in its own transaction.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/estakaadi/internal/db"
	"github.com/atinyakov/estakaadi/internal/idgen"
	"github.com/atinyakov/estakaadi/internal/models"
	"go.uber.org/zap"
)

// BackendName identifies this backend in stats and logs.
const BackendName = "structured"

// SQLStore implements the structured backend against SQLite or PostgreSQL.
type SQLStore struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB

	dialect db.Dialect
	ids     *idgen.Generator
	log     *zap.Logger
}

// NewSQLStore creates a store on sqlDB. The schema must already exist
// (see db.Open).
func NewSQLStore(sqlDB *sql.DB, dialect db.Dialect, ids *idgen.Generator, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	if ids == nil {
		ids = idgen.New()
	}
	return &SQLStore{DB: sqlDB, dialect: dialect, ids: ids, log: log}
}

// Name returns BackendName.
func (s *SQLStore) Name() string { return BackendName }

// Dialect returns the SQL dialect the store writes.
func (s *SQLStore) Dialect() db.Dialect { return s.dialect }

// Close closes the database handle.
func (s *SQLStore) Close() error { return s.DB.Close() }

// Init seeds the default data set when the users table is empty. A
// populated database is left untouched.
func (s *SQLStore) Init(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := s.count(ctx, tx, models.Users)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		now := s.ids.Stamp()
		for _, kind := range []models.Kind{models.Users, models.Companies, models.Schedule} {
			for _, e := range Defaults(kind) {
				e[models.FieldCreatedAt] = now
				e[models.FieldCreatedBy] = models.SystemActor
				if err := s.insert(ctx, tx, kind, e); err != nil {
					return err
				}
			}
		}

		entry := models.LogEntry{
			ID:        s.ids.NewID(string(models.Logs)),
			Timestamp: s.ids.Stamp(),
			Actor:     models.SystemActor,
			Action:    models.ActionInit,
			Details:   "Database initialized with default data",
		}
		if err := s.insert(ctx, tx, models.Logs, entry.Entity()); err != nil {
			return err
		}
		s.log.Info("default data seeded")
		return nil
	})
}

// GetAll returns every entity of kind ordered by id.
//
//	ctx:  context for cancellation and deadlines
//	kind: collection to read
//
// Returns the entities or an error if the query or decoding fails.
func (s *SQLStore) GetAll(ctx context.Context, kind models.Kind) ([]models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	var out []models.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.query(ctx, tx, fmt.Sprintf("SELECT body FROM %s ORDER BY id", kind))
		return err
	})
	return out, err
}

// Get fetches one entity by id, or models.ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, kind models.Kind, id string) (models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	var out models.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.get(ctx, tx, kind, id)
		return err
	})
	return out, err
}

// Insert adds e, which must carry its id. A duplicate id is an error.
func (s *SQLStore) Insert(ctx context.Context, kind models.Kind, e models.Entity, _ string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, kind, e)
	})
}

// Update reads the entity, overlays patch and writes it back in one
// transaction. A missing id yields models.ErrNotFound.
func (s *SQLStore) Update(ctx context.Context, kind models.Kind, id string, patch models.Entity, _ string) (models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	var out models.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.get(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		out = models.Merge(existing, patch)
		out[models.FieldID] = id

		body, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", kind, id, err)
		}
		sets := []string{"body = ?"}
		args := []any{string(body)}
		for _, ix := range models.IndexesFor(kind) {
			sets = append(sets, db.IndexColumn(ix.Name)+" = ?")
			args = append(args, indexArg(kind, ix, out))
		}
		args = append(args, id)

		q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", kind, strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(q), args...); err != nil {
			return fmt.Errorf("update %s/%s: %w", kind, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the entity with id and reports whether it existed.
func (s *SQLStore) Delete(ctx context.Context, kind models.Kind, id string, _ string) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	var existed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind)), id)
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", kind, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", kind, id, err)
		}
		existed = n > 0
		return nil
	})
	return existed, err
}

// FindBy returns entities whose index column equals value, ordered by id.
func (s *SQLStore) FindBy(ctx context.Context, kind models.Kind, index, value string) ([]models.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	ix, err := models.LookupIndex(kind, index)
	if err != nil {
		return nil, err
	}
	var out []models.Entity
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		q := fmt.Sprintf("SELECT body FROM %s WHERE %s = ? ORDER BY id", kind, db.IndexColumn(ix.Name))
		out, err = s.query(ctx, tx, q, value)
		return err
	})
	return out, err
}

// ReplaceAll empties every table and inserts data, all in one transaction.
func (s *SQLStore) ReplaceAll(ctx context.Context, data map[models.Kind][]models.Entity, _ string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range models.AllKinds {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", kind)); err != nil {
				return fmt.Errorf("clear %s: %w", kind, err)
			}
		}
		for _, kind := range models.AllKinds {
			for _, e := range data[kind] {
				if err := s.insert(ctx, tx, kind, e); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AppendLog inserts entry and trims the log to the newest limit entries.
func (s *SQLStore) AppendLog(ctx context.Context, entry models.LogEntry, limit int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insert(ctx, tx, models.Logs, entry.Entity()); err != nil {
			return err
		}
		if limit <= 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(db.TrimLogsQuery), limit); err != nil {
			return fmt.Errorf("trim logs: %w", err)
		}
		return nil
	})
}

// Count returns the number of rows of kind.
func (s *SQLStore) Count(ctx context.Context, kind models.Kind) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.count(ctx, tx, kind)
		return err
	})
	return n, err
}

// Stats reports per-kind counts. Byte sizes are not measured.
func (s *SQLStore) Stats(ctx context.Context) (models.Stats, error) {
	st := models.Stats{
		Backend:       BackendName,
		TotalSize:     models.SizeUnknown,
		FormattedSize: models.FormatSize(models.SizeUnknown),
		Version:       models.DocumentVersion,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range models.AllKinds {
			n, err := s.count(ctx, tx, kind)
			if err != nil {
				return err
			}
			st.Sections = append(st.Sections, models.KindStats{
				Name:          kind,
				ItemCount:     n,
				Size:          models.SizeUnknown,
				FormattedSize: models.FormatSize(models.SizeUnknown),
			})
			st.TotalItems += n
		}
		var last sql.NullString
		if err := tx.QueryRowContext(ctx, "SELECT MAX(ix_date) FROM logs").Scan(&last); err != nil {
			return fmt.Errorf("last update: %w", err)
		}
		st.LastUpdated = last.String
		return nil
	})
	if err != nil {
		return models.Stats{}, err
	}
	return st, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, tx *sql.Tx, kind models.Kind, id string) (models.Entity, error) {
	var body string
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(fmt.Sprintf("SELECT body FROM %s WHERE id = ?", kind)), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", kind, id, err)
	}
	return decode(body)
}

func (s *SQLStore) query(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]models.Entity, error) {
	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Entity, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) insert(ctx context.Context, tx *sql.Tx, kind models.Kind, e models.Entity) error {
	id := e.ID()
	if id == "" {
		return fmt.Errorf("insert %s: entity has no id", kind)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}

	cols := []string{"id", "body"}
	args := []any{id, string(body)}
	for _, ix := range models.IndexesFor(kind) {
		cols = append(cols, db.IndexColumn(ix.Name))
		args = append(args, indexArg(kind, ix, e))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", kind, strings.Join(cols, ", "), marks)
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(q), args...); err != nil {
		return fmt.Errorf("insert %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLStore) count(ctx context.Context, tx *sql.Tx, kind models.Kind) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// indexArg is NULL for an absent field so it never matches a lookup.
func indexArg(kind models.Kind, ix models.Index, e models.Entity) any {
	v := models.IndexValue(kind, ix, e)
	if v == "" {
		return nil
	}
	return v
}

func decode(body string) (models.Entity, error) {
	var e models.Entity
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return e, nil
}
