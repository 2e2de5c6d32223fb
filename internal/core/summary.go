package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// MonthTotal is the summed spending for one YYYY-MM bucket.
type MonthTotal struct {
	Month string
	Total decimal.Decimal
}

// ExpenseStats is a read-side projection over a set of expenses. It is never
// persisted and never cached.
type ExpenseStats struct {
	TotalExpenses decimal.Decimal
	CategorySums  map[string]decimal.Decimal
	MonthlyData   []MonthTotal // most recent first, at most MaxStatsMonths
}

// BudgetProgress compares period spending against a budget ceiling.
type BudgetProgress struct {
	Percentage decimal.Decimal
	Remaining  decimal.Decimal // negative once the budget is exceeded
	Exceeded   bool
}
