package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"spendbook/internal/core"
	"spendbook/internal/export"
	applog "spendbook/internal/log"
	"spendbook/internal/settings"
	"spendbook/internal/storage"
)

// ErrWriteFailed is returned when an add still fails after the store was
// reset and the write retried once.
var ErrWriteFailed = errors.New("could not save expense, please try again")

// BudgetStatus compares the current month's spending against the configured
// monthly budget.
type BudgetStatus struct {
	Month    string
	Start    core.Date
	End      core.Date
	Spent    decimal.Decimal
	Budget   decimal.Decimal
	Progress core.BudgetProgress
	Enabled  bool
	AlertAt  int
	Alert    bool
}

// ExpenseService is the entry point used by the CLI. It validates input,
// owns the recovery policy around the store and joins expenses with settings.
type ExpenseService struct {
	store     *storage.Store
	prefs     *settings.FileStore
	log       *applog.Logger
	exportLog *applog.Logger
	now       func() time.Time
	backupDir string
}

// Option configures an ExpenseService.
type Option func(*ExpenseService)

// WithLogger sets the service logger.
func WithLogger(l *applog.Logger) Option {
	return func(s *ExpenseService) {
		if l != nil {
			s.log = l.WithComponent(applog.ComponentService)
			s.exportLog = l.WithComponent(applog.ComponentExport)
		}
	}
}

// WithClock overrides the clock used for validation and budget periods.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBackupDir sets where CSV backups are written before a recovery reset.
// An empty dir disables backups.
func WithBackupDir(dir string) Option {
	return func(s *ExpenseService) {
		s.backupDir = dir
	}
}

func NewExpenseService(store *storage.Store, prefs *settings.FileStore, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store: store,
		prefs: prefs,
		log:       applog.Nop().WithComponent(applog.ComponentService),
		exportLog: applog.Nop().WithComponent(applog.ComponentExport),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitializeDatabase opens the store. If that fails the store is reset and
// initialized once more before giving up.
func (s *ExpenseService) InitializeDatabase(ctx context.Context) (storage.MigrationOutcome, error) {
	outcome, err := s.store.Initialize(ctx)
	if err == nil {
		s.logOutcome(ctx, outcome)
		return outcome, nil
	}

	s.log.WarnContext(ctx, "Database initialization failed, resetting",
		applog.FieldError, err, applog.FieldDBPath, s.store.Path())
	if rerr := s.store.Reset(ctx); rerr != nil {
		return outcome, fmt.Errorf("reset after failed initialization: %w", errors.Join(err, rerr))
	}

	outcome, err = s.store.Initialize(ctx)
	if err != nil {
		return outcome, fmt.Errorf("initialize database: %w", err)
	}
	s.logOutcome(ctx, outcome)
	return outcome, nil
}

func (s *ExpenseService) logOutcome(ctx context.Context, outcome storage.MigrationOutcome) {
	if outcome.Degraded {
		s.log.WarnContext(ctx, "Database running with an unrepaired schema",
			applog.FieldError, outcome.Err, applog.FieldSchemaVersion, outcome.SchemaVersion)
	}
}

// Close releases the database handle.
func (s *ExpenseService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// ResetDatabase discards the store and every row in it.
func (s *ExpenseService) ResetDatabase(ctx context.Context) error {
	return s.store.Reset(ctx)
}

// AddExpense validates in and stores it. A storage failure triggers one
// recovery cycle: a CSV backup of whatever can still be read, a reset, a
// fresh initialize and a single retry.
func (s *ExpenseService) AddExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	if err := in.Validate(s.now()); err != nil {
		s.log.DebugContext(ctx, "Expense rejected",
			applog.FieldOperation, applog.OpValidate, applog.FieldError, err)
		return 0, err
	}

	id, err := s.store.Add(ctx, in)
	if err == nil {
		return id, nil
	}

	s.log.WarnContext(ctx, "Saving expense failed, attempting recovery",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithError(err).
			WithExpense(0, in.Title, in.Amount.String(), in.Category, in.Date.String()).
			ToSlice()...)

	if err := s.recoverStore(ctx, err); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	id, err = s.store.Add(ctx, in)
	if err != nil {
		s.log.ErrorContext(ctx, "Saving expense failed after recovery", applog.FieldError, err)
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.log.InfoContext(ctx, "Expense saved after recovery", applog.FieldExpenseID, id)
	return id, nil
}

// recoverStore prepares the store for a retry. A store that was simply never
// opened is initialized; anything else is backed up and reset first. When
// the rows cannot be read for a CSV backup the database file itself is copied.
func (s *ExpenseService) recoverStore(ctx context.Context, cause error) error {
	if errors.Is(cause, storage.ErrNotInitialized) {
		_, err := s.InitializeDatabase(ctx)
		return err
	}

	if path, n, err := s.Backup(ctx); err != nil {
		s.log.WarnContext(ctx, "Backup before reset failed, copying database file", applog.FieldError, err)
		if path, cerr := s.copyDatabaseFile(); cerr != nil {
			s.log.ErrorContext(ctx, "Database file copy failed", applog.FieldError, cerr)
		} else if path != "" {
			s.log.InfoContext(ctx, "Database file copied before reset", applog.FieldPath, path)
		}
	} else if path != "" {
		s.log.InfoContext(ctx, "Backup written before reset", applog.FieldPath, path, applog.FieldCount, n)
	}

	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	_, err := s.InitializeDatabase(ctx)
	return err
}

// Backup writes every readable expense to a timestamped CSV file in the
// backup directory and returns its path. With no backup directory configured
// it does nothing.
func (s *ExpenseService) Backup(ctx context.Context) (string, int, error) {
	if s.backupDir == "" {
		return "", 0, nil
	}
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("read expenses for backup: %w", err)
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", 0, fmt.Errorf("create backup directory: %w", err)
	}

	path := filepath.Join(s.backupDir, fmt.Sprintf("expenses-%s.csv", s.now().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create backup file: %w", err)
	}
	n, err := export.Write(f, rows)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write backup: %w", err)
	}
	return path, n, nil
}

// copyDatabaseFile copies the raw database file into the backup directory.
// A missing file or an unset backup directory copies nothing.
func (s *ExpenseService) copyDatabaseFile() (string, error) {
	if s.backupDir == "" {
		return "", nil
	}
	src, err := os.Open(s.store.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open database file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(s.backupDir, fmt.Sprintf("expenses-%s.db", s.now().Format("20060102-150405")))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create database copy: %w", err)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("copy database file: %w", err)
	}
	return path, nil
}

func (s *ExpenseService) GetAllExpenses(ctx context.Context) ([]core.Expense, error) {
	return s.store.GetAll(ctx)
}

func (s *ExpenseService) GetExpenseByID(ctx context.Context, id int64) (core.Expense, bool, error) {
	return s.store.GetByID(ctx, id)
}

// UpdateExpense validates in and overwrites the expense. Updating a missing
// id is not an error; the boolean reports whether a row changed.
func (s *ExpenseService) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) (bool, error) {
	if err := in.Validate(s.now()); err != nil {
		return false, err
	}
	ok, err := s.store.Update(ctx, id, in)
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.DebugContext(ctx, "Update matched no expense", applog.FieldExpenseID, id)
	}
	return ok, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.DebugContext(ctx, "Delete matched no expense", applog.FieldExpenseID, id)
	}
	return ok, nil
}

func (s *ExpenseService) SearchExpenses(ctx context.Context, query string) ([]core.Expense, error) {
	return s.store.Search(ctx, query)
}

// GetExpensesByDateRange returns expenses dated within [start, end]. An
// inverted range matches nothing.
func (s *ExpenseService) GetExpensesByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return s.store.GetByDateRange(ctx, start, end)
}

// GetExpenseStats recomputes the aggregate view from every stored row.
func (s *ExpenseService) GetExpenseStats(ctx context.Context) (core.ExpenseStats, error) {
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return core.ExpenseStats{}, fmt.Errorf("load expenses for stats: %w", err)
	}
	return core.ComputeStats(rows), nil
}

// ClearAllData deletes every expense. Settings are left alone.
func (s *ExpenseService) ClearAllData(ctx context.Context) (int64, error) {
	return s.store.ClearAll(ctx)
}

// BudgetStatus reports spending for the calendar month containing now.
// Alert is only raised when the budget is enabled.
func (s *ExpenseService) BudgetStatus(ctx context.Context, now time.Time) (BudgetStatus, error) {
	prefs := s.Settings()
	start, end := core.MonthBounds(now)

	rows, err := s.store.GetByDateRange(ctx, start, end)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("load month expenses: %w", err)
	}

	spent := core.SumAmounts(rows)
	progress := core.ComputeBudgetProgress(spent, prefs.MonthlyBudget)
	status := BudgetStatus{
		Month:    start.MonthKey(),
		Start:    start,
		End:      end,
		Spent:    spent,
		Budget:   prefs.MonthlyBudget,
		Progress: progress,
		Enabled:  prefs.BudgetEnabled,
		AlertAt:  prefs.BudgetAlertPercentage,
	}
	status.Alert = prefs.BudgetEnabled &&
		prefs.MonthlyBudget.IsPositive() &&
		progress.Percentage.GreaterThanOrEqual(decimal.NewFromInt(int64(prefs.BudgetAlertPercentage)))

	if status.Alert {
		s.log.InfoContext(ctx, "Monthly budget alert",
			"month", status.Month, "spent", spent.String(), "budget", prefs.MonthlyBudget.String())
	}
	return status, nil
}

// ExportCSV writes every expense to w in display order.
func (s *ExpenseService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load expenses for export: %w", err)
	}
	n, err := export.Write(w, rows)
	if err != nil {
		return n, err
	}
	s.exportLog.InfoContext(ctx, "Expenses exported", applog.FieldOperation, applog.OpExport, applog.FieldCount, n)
	return n, nil
}

// ImportCSV parses r and adds every row. All rows are validated before the
// first insert, so a bad file adds nothing.
func (s *ExpenseService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	inputs, err := export.Parse(r)
	if err != nil {
		return 0, err
	}
	now := s.now()
	for i, in := range inputs {
		if err := in.Validate(now); err != nil {
			s.exportLog.WarnContext(ctx, "Import rejected",
				applog.FieldOperation, applog.OpValidate, applog.FieldError, err, "row", i+1)
			return 0, fmt.Errorf("row %d (%q): %w", i+1, in.Title, err)
		}
	}

	for i, in := range inputs {
		if _, err := s.store.Add(ctx, in); err != nil {
			return i, fmt.Errorf("import row %d: %w", i+1, err)
		}
	}
	s.exportLog.InfoContext(ctx, "Expenses imported", applog.FieldOperation, applog.OpImport, applog.FieldCount, len(inputs))
	return len(inputs), nil
}

// Settings returns the current preferences, or the defaults when no settings
// store is attached.
func (s *ExpenseService) Settings() settings.Settings {
	if s.prefs == nil {
		return settings.Defaults()
	}
	return s.prefs.Current()
}

// UpdateSettings applies and persists p.
func (s *ExpenseService) UpdateSettings(p settings.Patch) (settings.Settings, error) {
	if s.prefs == nil {
		return settings.Settings{}, errors.New("no settings store configured")
	}
	return s.prefs.Update(p)
}
