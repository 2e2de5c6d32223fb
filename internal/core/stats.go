package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MaxStatsMonths caps how many monthly buckets ComputeStats returns.
const MaxStatsMonths = 12

var hundred = decimal.NewFromInt(100)

// ComputeStats derives totals, per-category sums and the monthly series from
// rows. Categories are used verbatim; no canonicalization happens.
func ComputeStats(rows []Expense) ExpenseStats {
	stats := ExpenseStats{
		TotalExpenses: decimal.Zero,
		CategorySums:  make(map[string]decimal.Decimal),
		MonthlyData:   []MonthTotal{},
	}

	months := make(map[string]decimal.Decimal)
	for _, e := range rows {
		stats.TotalExpenses = stats.TotalExpenses.Add(e.Amount)

		if sum, ok := stats.CategorySums[e.Category]; ok {
			stats.CategorySums[e.Category] = sum.Add(e.Amount)
		} else {
			stats.CategorySums[e.Category] = e.Amount
		}

		key := e.Date.MonthKey()
		if sum, ok := months[key]; ok {
			months[key] = sum.Add(e.Amount)
		} else {
			months[key] = e.Amount
		}
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	// YYYY-MM keys sort chronologically as strings
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > MaxStatsMonths {
		keys = keys[:MaxStatsMonths]
	}
	for _, k := range keys {
		stats.MonthlyData = append(stats.MonthlyData, MonthTotal{Month: k, Total: months[k]})
	}

	return stats
}

// ComputeBudgetProgress compares spent against budget. A zero or negative
// budget yields a 0% percentage instead of a division error.
func ComputeBudgetProgress(spent, budget decimal.Decimal) BudgetProgress {
	p := BudgetProgress{
		Percentage: decimal.Zero,
		Remaining:  budget.Sub(spent),
		Exceeded:   spent.GreaterThan(budget),
	}
	if budget.IsPositive() {
		p.Percentage = spent.Mul(hundred).Div(budget)
	}
	return p
}

// SumAmounts adds up the amounts of rows.
func SumAmounts(rows []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range rows {
		total = total.Add(e.Amount)
	}
	return total
}

// SortedCategories orders category sums by amount, largest first. Equal
// amounts are ordered by name so output is stable.
func SortedCategories(sums map[string]decimal.Decimal) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(sums))
	for name, amount := range sums {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CategoryShare returns amount as a whole percentage of total, 0 when total is 0.
func CategoryShare(amount, total decimal.Decimal) int {
	if total.IsZero() {
		return 0
	}
	return int(amount.Mul(hundred).Div(total).Round(0).IntPart())
}

// MonthBounds returns the first and last calendar day of the month containing t.
func MonthBounds(t time.Time) (Date, Date) {
	first := NewDate(t.Year(), int(t.Month()), 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}
