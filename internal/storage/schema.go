package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"spendbook/internal/core"
	applog "spendbook/internal/log"
)

const expensesTableSQL = `
CREATE TABLE expenses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    amount REAL NOT NULL,
    category TEXT NOT NULL,
    date TEXT NOT NULL,
    description TEXT,
    created_at DATETIME DEFAULT (datetime('now','localtime'))
)`

const expensesIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date);
CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(category);
`

// expenseColumns is the full current column set, in table order.
var expenseColumns = []string{"id", "title", "amount", "category", "date", "description", "created_at"}

// MigrationOutcome describes what Initialize did to the schema. A Degraded
// outcome means the created_at repair did not complete; Err holds the reason.
// The store still reads and writes the columns that exist, and rows read
// from it carry a zero CreatedAt.
type MigrationOutcome struct {
	SchemaVersion  uint
	AddedCreatedAt bool
	Rebuilt        bool
	Degraded       bool
	Err            error
}

// healCreatedAt makes sure the expenses table carries created_at. Tables from
// before the column existed get it through ALTER TABLE; if that fails the
// table is rebuilt. Rebuild failures are reported in the outcome, not returned.
func (s *Store) healCreatedAt(ctx context.Context, db *sql.DB, outcome *MigrationOutcome) {
	cols, err := tableColumns(ctx, db, "expenses")
	if err != nil {
		outcome.Degraded = true
		outcome.Err = fmt.Errorf("inspect expenses table: %w", err)
		s.schemaLog.WarnContext(ctx, "Could not inspect expenses table",
			applog.FieldOperation, applog.OpMigrate, applog.FieldError, err)
		return
	}
	if hasColumn(cols, "created_at") {
		return
	}

	now := formatTimestamp(s.now())
	err = s.alterCreatedAt(ctx, db, now)
	if err == nil {
		outcome.AddedCreatedAt = true
		s.schemaLog.InfoContext(ctx, "Added created_at column to expenses",
			applog.FieldOperation, applog.OpMigrate)
		return
	}
	s.schemaLog.WarnContext(ctx, "Adding created_at in place failed, rebuilding table",
		applog.FieldOperation, applog.OpMigrate, applog.FieldError, err)

	if err := rebuildExpensesTable(ctx, db, now); err != nil {
		outcome.Degraded = true
		outcome.Err = fmt.Errorf("rebuild expenses table: %w", err)
		s.schemaLog.WarnContext(ctx, "Expenses table rebuild failed, continuing degraded",
			applog.FieldOperation, applog.OpRebuild, applog.FieldError, err)
		return
	}
	outcome.Rebuilt = true
	s.schemaLog.InfoContext(ctx, "Rebuilt expenses table with created_at column",
		applog.FieldOperation, applog.OpRebuild)
}

// addCreatedAtColumn adds the column without a default (SQLite rejects
// non-constant defaults in ALTER TABLE) and backfills existing rows.
func addCreatedAtColumn(ctx context.Context, db *sql.DB, now string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alter: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `ALTER TABLE expenses ADD COLUMN created_at DATETIME`); err != nil {
		return fmt.Errorf("add created_at column: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE expenses SET created_at = ? WHERE created_at IS NULL`, now); err != nil {
		return fmt.Errorf("backfill created_at: %w", err)
	}
	return tx.Commit()
}

// rebuildExpensesTable copies every row aside, verifies the copy, and only
// then drops and recreates expenses with the full schema. The whole sequence
// runs in one transaction so an interruption leaves the original table alone.
func rebuildExpensesTable(ctx context.Context, db *sql.DB, now string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS expenses_backup`); err != nil {
		return fmt.Errorf("drop stale backup: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE expenses_backup AS SELECT * FROM expenses`); err != nil {
		return fmt.Errorf("copy rows to backup: %w", err)
	}

	original, err := countRows(ctx, tx, "expenses")
	if err != nil {
		return err
	}
	copied, err := countRows(ctx, tx, "expenses_backup")
	if err != nil {
		return err
	}
	if original != copied {
		return fmt.Errorf("backup has %d rows, expected %d", copied, original)
	}

	backupCols, err := tableColumns(ctx, tx, "expenses_backup")
	if err != nil {
		return err
	}
	selectList, args, err := rebuildSelectList(backupCols, now)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE expenses`); err != nil {
		return fmt.Errorf("drop expenses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, expensesTableSQL); err != nil {
		return fmt.Errorf("recreate expenses: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO expenses (%s) SELECT %s FROM expenses_backup ORDER BY id`,
		strings.Join(expenseColumns, ", "), selectList)
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("restore rows: %w", err)
	}

	restored, err := countRows(ctx, tx, "expenses")
	if err != nil {
		return err
	}
	if restored != original {
		return fmt.Errorf("restored %d rows, expected %d", restored, original)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE expenses_backup`); err != nil {
		return fmt.Errorf("drop backup: %w", err)
	}
	if _, err := tx.ExecContext(ctx, expensesIndexesSQL); err != nil {
		return fmt.Errorf("recreate indexes: %w", err)
	}
	return tx.Commit()
}

// rebuildSelectList maps backup columns onto the current column set.
// created_at and description may be missing; anything else is required.
func rebuildSelectList(backupCols []string, now string) (string, []any, error) {
	parts := make([]string, 0, len(expenseColumns))
	var args []any
	for _, c := range expenseColumns {
		present := hasColumn(backupCols, c)
		switch {
		case c == "created_at" && present:
			parts = append(parts, "COALESCE(created_at, ?)")
			args = append(args, now)
		case c == "created_at":
			parts = append(parts, "?")
			args = append(args, now)
		case c == "description" && !present:
			parts = append(parts, "NULL")
		case !present:
			return "", nil, fmt.Errorf("backup is missing required column %q", c)
		default:
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ", "), args, nil
}

// tableLayout records which optional columns the expenses table carries, so
// statements only name columns that exist.
type tableLayout struct {
	description bool
	createdAt   bool
}

func layoutOf(cols []string) tableLayout {
	return tableLayout{
		description: hasColumn(cols, "description"),
		createdAt:   hasColumn(cols, "created_at"),
	}
}

func (l tableLayout) selectSQL() string {
	list := "id, title, amount, category, date"
	if l.description {
		list += ", description"
	}
	if l.createdAt {
		list += ", CAST(created_at AS TEXT) AS created_at"
	}
	return "SELECT " + list + " FROM expenses"
}

// writeColumns returns the columns an insert or update sets, in the order
// writeArgs produces values for them. created_at is only written on insert.
func (l tableLayout) writeColumns(insert bool) []string {
	cols := []string{"title", "amount", "category", "date"}
	if l.description {
		cols = append(cols, "description")
	}
	if insert && l.createdAt {
		cols = append(cols, "created_at")
	}
	return cols
}

func (l tableLayout) writeArgs(in core.ExpenseInput, createdAt string, insert bool) []any {
	args := []any{in.Title, in.Amount.InexactFloat64(), in.Category, in.Date.String()}
	if l.description {
		args = append(args, in.Description)
	}
	if insert && l.createdAt {
		args = append(args, createdAt)
	}
	return args
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tableColumns lists a table's column names via PRAGMA table_info. An absent
// table yields an empty list.
func tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func countRows(ctx context.Context, q queryer, table string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
