// Package storage owns the on-disk expense table: schema creation and repair,
// and every read and write of expense rows.
//
// A Store holds exactly one SQLite handle. It is constructed once and passed
// to whoever needs it; nothing in this package keeps global state.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"spendbook/internal/core"
	applog "spendbook/internal/log"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed expense store.
type Store struct {
	path      string
	log       *applog.Logger
	schemaLog *applog.Logger
	now       func() time.Time

	// alterCreatedAt is swapped in tests to force the rebuild path.
	alterCreatedAt func(ctx context.Context, db *sql.DB, now string) error

	mu     sync.Mutex
	db     *sql.DB
	layout tableLayout
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(l *applog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l.WithComponent(applog.ComponentStorage)
			s.schemaLog = l.WithComponent(applog.ComponentSchema)
		}
	}
}

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a Store for the database file at path. Nothing is opened
// until Initialize is called.
func NewStore(path string, opts ...Option) *Store {
	base := applog.Nop()
	s := &Store{
		path:           path,
		log:            base.WithComponent(applog.ComponentStorage),
		schemaLog:      base.WithComponent(applog.ComponentSchema),
		now:            time.Now,
		alterCreatedAt: addCreatedAtColumn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) dsn() string {
	return s.path + "?_pragma=busy_timeout(5000)"
}

// Initialize opens (or creates) the database, applies migrations and repairs
// tables that predate created_at. Errors opening the file or creating the
// table are returned; problems repairing created_at are only reported in the
// outcome.
func (s *Store) Initialize(ctx context.Context) (MigrationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcome MigrationOutcome

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return outcome, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return outcome, fmt.Errorf("open sqlite database: %w", err)
	}
	// one handle, one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return outcome, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(s.dsn())
	if err != nil {
		db.Close()
		return outcome, fmt.Errorf("run migrations: %w", err)
	}
	outcome.SchemaVersion = version

	s.healCreatedAt(ctx, db, &outcome)

	cols, err := tableColumns(ctx, db, "expenses")
	if err != nil {
		db.Close()
		return outcome, fmt.Errorf("inspect expenses table: %w", err)
	}
	s.layout = layoutOf(cols)
	s.db = db
	s.log.InfoContext(ctx, "Expense store initialized",
		applog.FieldDBPath, s.path,
		applog.FieldSchemaVersion, version,
		"added_created_at", outcome.AddedCreatedAt,
		"rebuilt", outcome.Rebuilt,
		"degraded", outcome.Degraded)

	return outcome, nil
}

// Reset closes and discards the handle and deletes the database file, so the
// next Initialize starts from an empty table. Every row is lost.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		s.db = nil
	}

	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(s.path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", s.path+suffix, err))
		}
	}

	s.log.WarnContext(ctx, "Expense store reset",
		applog.FieldOperation, applog.OpReset, applog.FieldDBPath, s.path)
	return errors.Join(errs...)
}

// Close releases the handle. Further calls fail with ErrNotInitialized.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ready reports whether Initialize has succeeded and the store is open.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *Store) handle() (*sql.DB, error) {
	db, _, err := s.conn()
	return db, err
}

// conn returns the handle together with the column layout it was opened with.
func (s *Store) conn() (*sql.DB, tableLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, tableLayout{}, ErrNotInitialized
	}
	return s.db, s.layout, nil
}

// Columns returns the current column names of the expenses table.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return tableColumns(ctx, db, "expenses")
}

// Add inserts a new expense and returns its id. created_at is taken from the
// store clock when the table has that column. The input is stored as given;
// validation is the caller's job.
func (s *Store) Add(ctx context.Context, in core.ExpenseInput) (int64, error) {
	db, layout, err := s.conn()
	if err != nil {
		return 0, fmt.Errorf("add expense: %w", err)
	}

	cols := layout.writeColumns(true)
	q := fmt.Sprintf(`INSERT INTO expenses (%s) VALUES (?%s)`,
		strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)-1))
	res, err := db.ExecContext(ctx, q, layout.writeArgs(in, formatTimestamp(s.now()), true)...)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read expense id: %w", err)
	}

	s.log.DebugContext(ctx, "Expense saved",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithExpense(id, in.Title, in.Amount.String(), in.Category, in.Date.String()).
			ToSlice()...)

	return id, nil
}

// GetAll returns every expense, newest date first; same-day rows are ordered
// by id descending so the latest insert comes first.
func (s *Store) GetAll(ctx context.Context) ([]core.Expense, error) {
	return s.query(ctx, applog.OpList, "list expenses", ` ORDER BY date DESC, id DESC`)
}

// GetByID returns the expense with id. A missing row is not an error: the
// boolean is false and the error nil.
func (s *Store) GetByID(ctx context.Context, id int64) (core.Expense, bool, error) {
	rows, err := s.query(ctx, applog.OpRead, "get expense by id", ` WHERE id = ?`, id)
	if err != nil {
		return core.Expense{}, false, err
	}
	if len(rows) == 0 {
		return core.Expense{}, false, nil
	}
	return rows[0], true, nil
}

// Update overwrites the mutable fields of the row with id. Updating an id that
// does not exist changes nothing and reports false without an error.
func (s *Store) Update(ctx context.Context, id int64, in core.ExpenseInput) (bool, error) {
	db, layout, err := s.conn()
	if err != nil {
		return false, fmt.Errorf("update expense: %w", err)
	}

	cols := layout.writeColumns(false)
	q := fmt.Sprintf(`UPDATE expenses SET %s = ? WHERE id = ?`, strings.Join(cols, " = ?, "))
	args := append(layout.writeArgs(in, "", false), id)
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("update expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update expense %d: %w", id, err)
	}

	s.log.DebugContext(ctx, "Expense updated",
		applog.FieldOperation, applog.OpUpdate, applog.FieldExpenseID, id, applog.FieldCount, n)
	return n > 0, nil
}

// Delete removes the row with id. A missing row reports false without an error.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}

	res, err := db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete expense %d: %w", id, err)
	}

	s.log.DebugContext(ctx, "Expense deleted",
		applog.FieldOperation, applog.OpDelete, applog.FieldExpenseID, id, applog.FieldCount, n)
	return n > 0, nil
}

// Search returns rows whose title, description or category contains query.
// Matching uses SQLite LIKE, so it ignores case for ASCII letters only.
// Wildcards in query match literally.
func (s *Store) Search(ctx context.Context, query string) ([]core.Expense, error) {
	pattern := "%" + escapeLike(query) + "%"
	where := ` WHERE title LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\'`
	args := []any{pattern, pattern}
	if _, layout, err := s.conn(); err == nil && layout.description {
		where += ` OR description LIKE ? ESCAPE '\'`
		args = append(args, pattern)
	}
	return s.query(ctx, applog.OpSearch, "search expenses", where+` ORDER BY date DESC, id DESC`, args...)
}

// GetByDateRange returns rows dated between start and end, both inclusive.
func (s *Store) GetByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return s.query(ctx, applog.OpList, "list expenses by date range",
		` WHERE date BETWEEN ? AND ? ORDER BY date DESC, id DESC`,
		start.String(), end.String())
}

// ClearAll deletes every row and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, fmt.Errorf("clear expenses: %w", err)
	}

	res, err := db.ExecContext(ctx, `DELETE FROM expenses`)
	if err != nil {
		return 0, fmt.Errorf("clear expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear expenses: %w", err)
	}

	s.log.WarnContext(ctx, "All expenses cleared",
		applog.FieldOperation, applog.OpClear, applog.FieldCount, n)
	return n, nil
}

// Count returns the number of stored expenses.
func (s *Store) Count(ctx context.Context) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return countRows(ctx, db, "expenses")
}

// query runs the layout's SELECT followed by clause and decodes the rows.
func (s *Store) query(ctx context.Context, op, what, clause string, args ...any) ([]core.Expense, error) {
	db, layout, err := s.conn()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	rows, err := db.QueryContext(ctx, layout.selectSQL()+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	expenses, err := scanExpenses(rows)
	if err != nil {
		s.log.WarnContext(ctx, "Stored expense could not be decoded",
			applog.FieldOperation, op, applog.FieldError, err)
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return expenses, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
