package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"spendbook/internal/cli"
	"spendbook/internal/core"
	applog "spendbook/internal/log"
	"spendbook/internal/report"
	"spendbook/internal/settings"
)

func newFlags(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *env) currency() string {
	return e.Service.Settings().Currency
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid expense id %q", args[0])
	}
	return id, nil
}

func cmdInit(ctx context.Context, e *env, args []string) error {
	o := e.Outcome
	fmt.Fprintf(e.stdout, "Database ready at %s (schema version %d)\n", e.Config.DBPath, o.SchemaVersion)
	switch {
	case o.AddedCreatedAt:
		fmt.Fprintln(e.stdout, "Added the created_at column to existing expenses.")
	case o.Rebuilt:
		fmt.Fprintln(e.stdout, "Rebuilt the expenses table to add created_at.")
	case o.Degraded:
		fmt.Fprintf(e.stdout, "Warning: schema repair did not complete: %v\n", o.Err)
	}
	return nil
}

func cmdAdd(ctx context.Context, e *env, args []string) error {
	prefs := e.Service.Settings()
	fs := newFlags("add", e)
	title := fs.String("title", "", "what the money was spent on")
	amount := fs.String("amount", "", "positive amount, e.g. 12.50 or 12,50")
	category := fs.String("category", prefs.DefaultCategory, "category")
	date := fs.String("date", core.DateOf(time.Now()).String(), "date as YYYY-MM-DD")
	desc := fs.String("desc", "", "optional description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 || *title == "" || *amount == "" {
		return errUsage
	}

	in, err := buildInput(*title, *amount, *category, *date, *desc)
	if err != nil {
		return err
	}
	id, err := e.Service.AddExpense(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Added expense %d: %s %s\n", id, in.Title, core.FormatAmount(in.Amount, prefs.Currency))

	status, err := e.Service.BudgetStatus(ctx, time.Now())
	if err != nil {
		e.Log.WarnContext(ctx, "Budget check failed", applog.FieldError, err)
		return nil
	}
	if status.Alert {
		fmt.Fprintln(e.stdout)
		report.Budget(e.stdout, status, prefs.Currency)
	}
	return nil
}

func buildInput(title, amount, category, date, desc string) (core.ExpenseInput, error) {
	a, err := core.ParseAmount(amount)
	if err != nil {
		return core.ExpenseInput{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.ExpenseInput{}, fmt.Errorf("date %q: %w", date, err)
	}
	return core.ExpenseInput{
		Title:       strings.TrimSpace(title),
		Amount:      a,
		Category:    strings.TrimSpace(category),
		Date:        d,
		Description: strings.TrimSpace(desc),
	}, nil
}

func cmdList(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	rows, err := e.Service.GetAllExpenses(ctx)
	if err != nil {
		return err
	}
	report.Expenses(e.stdout, rows, e.currency())
	return nil
}

func cmdShow(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	exp, ok, err := e.Service.GetExpenseByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no expense with id %d", id)
	}
	report.Expense(e.stdout, exp, e.currency(), time.Now())
	return nil
}

func cmdEdit(ctx context.Context, e *env, args []string) error {
	fs := newFlags("edit", e)
	fs.String("title", "", "new title")
	fs.String("amount", "", "new amount")
	fs.String("category", "", "new category")
	fs.String("date", "", "new date as YYYY-MM-DD")
	fs.String("desc", "", "new description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	current, ok, err := e.Service.GetExpenseByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no expense with id %d", id)
	}

	// start from the stored values and overwrite only flags that were given
	fields := map[string]string{
		"title":    current.Title,
		"amount":   current.Amount.String(),
		"category": current.Category,
		"date":     current.Date.String(),
		"desc":     current.Description,
	}
	fs.Visit(func(f *flag.Flag) { fields[f.Name] = f.Value.String() })

	in, err := buildInput(fields["title"], fields["amount"], fields["category"], fields["date"], fields["desc"])
	if err != nil {
		return err
	}
	if _, err := e.Service.UpdateExpense(ctx, id, in); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Updated expense %d\n", id)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	ok, err := e.Service.DeleteExpense(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(e.stdout, "No expense with id %d, nothing deleted\n", id)
		return nil
	}
	fmt.Fprintf(e.stdout, "Deleted expense %d\n", id)
	return nil
}

func cmdSearch(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	rows, err := e.Service.SearchExpenses(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	report.Expenses(e.stdout, rows, e.currency())
	return nil
}

func cmdRange(ctx context.Context, e *env, args []string) error {
	first, last := core.MonthBounds(time.Now())
	fs := newFlags("range", e)
	from := fs.String("from", first.String(), "first date, inclusive")
	to := fs.String("to", last.String(), "last date, inclusive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return errUsage
	}

	start, err := core.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("from %q: %w", *from, err)
	}
	end, err := core.ParseDate(*to)
	if err != nil {
		return fmt.Errorf("to %q: %w", *to, err)
	}
	rows, err := e.Service.GetExpensesByDateRange(ctx, start, end)
	if err != nil {
		return err
	}
	report.Expenses(e.stdout, rows, e.currency())
	return nil
}

func cmdStats(ctx context.Context, e *env, args []string) error {
	fs := newFlags("stats", e)
	months := fs.Int("months", e.Config.RecentMonths, "monthly trend rows to show (max 12)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stats, err := e.Service.GetExpenseStats(ctx)
	if err != nil {
		return err
	}
	report.Stats(e.stdout, stats, e.currency(), *months)
	return nil
}

func cmdBudget(ctx context.Context, e *env, args []string) error {
	status, err := e.Service.BudgetStatus(ctx, time.Now())
	if err != nil {
		return err
	}
	report.Budget(e.stdout, status, e.currency())
	return nil
}

func cmdExport(ctx context.Context, e *env, args []string) error {
	fs := newFlags("export", e)
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var w io.Writer = e.stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := e.Service.ExportCSV(ctx, w)
	if err != nil {
		return err
	}
	if *out != "" {
		report.Count(e.stdout, "Exported", int64(n))
	}
	return nil
}

func cmdImport(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	n, err := e.Service.ImportCSV(ctx, f)
	if err != nil {
		return err
	}
	report.Count(e.stdout, "Imported", int64(n))
	return nil
}

func confirmFlag(name string, e *env, args []string) (bool, error) {
	fs := newFlags(name, e)
	yes := fs.Bool("yes", false, "confirm the destructive operation")
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	return *yes, nil
}

func cmdClear(ctx context.Context, e *env, args []string) error {
	yes, err := confirmFlag("clear", e, args)
	if err != nil {
		return err
	}
	if !yes {
		return fmt.Errorf("refusing to delete every expense without -yes")
	}
	n, err := e.Service.ClearAllData(ctx)
	if err != nil {
		return err
	}
	report.Count(e.stdout, "Deleted", n)
	return nil
}

func cmdReset(ctx context.Context, e *env, args []string) error {
	yes, err := confirmFlag("reset", e, args)
	if err != nil {
		return err
	}
	if !yes {
		return fmt.Errorf("refusing to reset the database without -yes")
	}

	path, n, err := e.Service.Backup(ctx)
	if err != nil {
		return fmt.Errorf("backup before reset: %w", err)
	}
	if path != "" {
		fmt.Fprintf(e.stdout, "Backed up %d expenses to %s\n", n, path)
	}
	if err := e.Service.ResetDatabase(ctx); err != nil {
		return err
	}
	if _, err := e.Service.InitializeDatabase(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "Database reset")
	return nil
}

func cmdSettings(ctx context.Context, e *env, args []string) error {
	fs := newFlags("settings", e)
	currency := fs.String("currency", "", "display currency code, e.g. EUR")
	budget := fs.String("budget", "", "monthly budget")
	alert := fs.Int("alert", 0, "alert when this percentage of the budget is spent")
	defaultCategory := fs.String("default-category", "", "category used when add gets none")
	enabled := fs.Bool("budget-enabled", false, "track the monthly budget")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return errUsage
	}

	var p settings.Patch
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "currency":
			p.Currency = currency
		case "budget":
			b, err := decimal.NewFromString(strings.ReplaceAll(*budget, ",", "."))
			if err != nil {
				parseErr = fmt.Errorf("budget %q: %w", *budget, err)
				return
			}
			p.MonthlyBudget = &b
		case "alert":
			p.BudgetAlertPercentage = alert
		case "default-category":
			p.DefaultCategory = defaultCategory
		case "budget-enabled":
			p.BudgetEnabled = enabled
		}
	})
	if parseErr != nil {
		return parseErr
	}

	current := e.Service.Settings()
	if !p.Empty() {
		updated, err := e.Service.UpdateSettings(p)
		if err != nil {
			return err
		}
		current = updated
	}
	report.Settings(e.stdout, current)
	return nil
}

func cmdDoctor(ctx context.Context, e *env, args []string) error {
	o := e.Outcome
	fmt.Fprintf(e.stdout, "database:       %s\n", e.Config.DBPath)
	fmt.Fprintf(e.stdout, "schema version: %d\n", o.SchemaVersion)

	cols, err := e.Store.Columns(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "columns:        %s\n", strings.Join(cols, ", "))

	n, err := e.Store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "expenses:       %d\n", n)
	fmt.Fprintf(e.stdout, "settings:       %s\n", e.Settings.Path())
	fmt.Fprintf(e.stdout, "backups:        %s\n", e.Config.BackupDir)

	if o.Degraded {
		fmt.Fprintf(e.stdout, "status:         degraded (%v)\n", o.Err)
		return nil
	}
	fmt.Fprintln(e.stdout, "status:         ok")
	return nil
}

func cmdWatch(ctx context.Context, e *env, args []string) error {
	fs := newFlags("watch", e)
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := e.Log.WithComponent(applog.ComponentWatch)

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	ctx, done := cli.GracefulShutdown(ctx, logger, 5*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)

	changes := make(chan settings.Settings, 1)
	g.Go(func() error {
		return e.Settings.Watch(gctx, e.Config.WatchDebounce, func(s settings.Settings) {
			select {
			case changes <- s:
			default:
			}
		})
	})

	g.Go(func() error {
		if err := printBudget(gctx, e); err != nil {
			return err
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-changes:
				fmt.Fprintf(e.stdout, "\nSettings changed (%s, budget %s)\n", s.Currency, core.FormatAmount(s.MonthlyBudget, s.Currency))
				if err := printBudget(gctx, e); err != nil {
					return err
				}
			}
		}
	})

	err := g.Wait()
	stop()
	<-done
	return err
}

func printBudget(ctx context.Context, e *env) error {
	status, err := e.Service.BudgetStatus(ctx, time.Now())
	if err != nil {
		return err
	}
	report.Budget(e.stdout, status, e.currency())
	return nil
}
