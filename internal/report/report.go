// Package report renders expenses, statistics and budget status for the
// terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"spendbook/internal/core"
	"spendbook/internal/services"
	"spendbook/internal/settings"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
)

const barWidth = 30

// Expenses writes a one-line-per-expense table.
func Expenses(w io.Writer, rows []core.Expense, currency string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No expenses found."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%6s  %-10s  %-28s  %-18s  %14s", "ID", "DATE", "TITLE", "CATEGORY", "AMOUNT")))
	for _, e := range rows {
		fmt.Fprintf(w, "%6d  %-10s  %-28s  %-18s  %14s\n",
			e.ID, e.Date, truncate(e.Title, 28), truncate(e.Category, 18), core.FormatAmount(e.Amount, currency))
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d %s, total %s",
		len(rows), plural(len(rows), "expense", "expenses"), core.FormatAmount(core.SumAmounts(rows), currency))))
}

// Expense writes the full detail of a single expense. now anchors the
// relative created-at time.
func Expense(w io.Writer, e core.Expense, currency string, now time.Time) {
	fmt.Fprintln(w, titleStyle.Render(e.Title))
	fmt.Fprintf(w, "  %-12s %d\n", "ID", e.ID)
	fmt.Fprintf(w, "  %-12s %s\n", "Amount", core.FormatAmount(e.Amount, currency))
	fmt.Fprintf(w, "  %-12s %s\n", "Category", e.Category)
	fmt.Fprintf(w, "  %-12s %s\n", "Date", e.Date)
	if e.Description != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "Description", e.Description)
	}
	if !e.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  %-12s %s %s\n", "Created", e.CreatedAt.Format("2006-01-02 15:04"),
			mutedStyle.Render("("+humanize.RelTime(e.CreatedAt, now, "ago", "from now")+")"))
	}
}

// Stats writes the total, the per-category breakdown (largest first, with
// share of total) and up to recentMonths monthly totals.
func Stats(w io.Writer, stats core.ExpenseStats, currency string, recentMonths int) {
	fmt.Fprintln(w, titleStyle.Render("Spending overview"))
	fmt.Fprintf(w, "  Total: %s\n\n", core.FormatAmount(stats.TotalExpenses, currency))

	fmt.Fprintln(w, headerStyle.Render("Top categories"))
	cats := core.SortedCategories(stats.CategorySums)
	if len(cats) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No expenses yet."))
	}
	for _, c := range cats {
		share := core.CategoryShare(c.Amount, stats.TotalExpenses)
		fmt.Fprintf(w, "  %-20s %14s  %3d%%  %s\n",
			truncate(c.Name, 20), core.FormatAmount(c.Amount, currency), share, bar(share, 20))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Monthly trend"))
	months := stats.MonthlyData
	if recentMonths > 0 && len(months) > recentMonths {
		months = months[:recentMonths]
	}
	if len(months) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No expenses yet."))
	}
	for _, m := range months {
		fmt.Fprintf(w, "  %-10s %14s\n", monthLabel(m.Month), core.FormatAmount(m.Total, currency))
	}
}

// Budget writes the month's progress against the budget.
func Budget(w io.Writer, st services.BudgetStatus, currency string) {
	fmt.Fprintln(w, titleStyle.Render("Budget for "+monthLabel(st.Month)))
	if !st.Enabled {
		fmt.Fprintln(w, mutedStyle.Render("  Budget tracking is disabled. Enable it with: spendbook settings -budget-enabled=true"))
	}

	pct := int(st.Progress.Percentage.Round(0).IntPart())
	fmt.Fprintf(w, "  Spent     %s of %s\n", core.FormatAmount(st.Spent, currency), core.FormatAmount(st.Budget, currency))
	fmt.Fprintf(w, "  Progress  %s %d%%\n", bar(pct, barWidth), pct)

	remaining := core.FormatAmount(st.Progress.Remaining, currency)
	switch {
	case st.Progress.Exceeded:
		fmt.Fprintln(w, alertStyle.Render(fmt.Sprintf("  Over budget by %s", core.FormatAmount(st.Progress.Remaining.Neg(), currency))))
	case st.Alert:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  %d%% of budget used, %s left (alert at %d%%)", pct, remaining, st.AlertAt)))
	default:
		fmt.Fprintln(w, okStyle.Render("  Remaining "+remaining))
	}
}

// Settings writes the current preferences.
func Settings(w io.Writer, s settings.Settings) {
	cur, _ := core.LookupCurrency(s.Currency)
	fmt.Fprintln(w, titleStyle.Render("Settings"))
	fmt.Fprintf(w, "  %-24s %s (%s)\n", "Currency", s.Currency, strings.TrimSpace(cur.Symbol))
	fmt.Fprintf(w, "  %-24s %s\n", "Monthly budget", core.FormatAmount(s.MonthlyBudget, s.Currency))
	fmt.Fprintf(w, "  %-24s %t\n", "Budget enabled", s.BudgetEnabled)
	fmt.Fprintf(w, "  %-24s %d%%\n", "Budget alert at", s.BudgetAlertPercentage)
	fmt.Fprintf(w, "  %-24s %s\n", "Default category", s.DefaultCategory)
}

// Count writes a short "n things" line, e.g. after import or clear.
func Count(w io.Writer, verb string, n int64) {
	fmt.Fprintf(w, "%s %s %s\n", verb, humanize.Comma(n), plural(int(n), "expense", "expenses"))
}

func bar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	style := okStyle
	switch {
	case percent >= 100:
		style = alertStyle
	case percent >= 80:
		style = warnStyle
	}
	return style.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}

func monthLabel(key string) string {
	t, err := time.Parse(core.MonthLayout, key)
	if err != nil {
		return key
	}
	return t.Format("Jan 2006")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
