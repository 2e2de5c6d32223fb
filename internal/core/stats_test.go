package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func expense(date, category, amount string) Expense {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return Expense{Title: category, Category: category, Date: d, Amount: decimal.RequireFromString(amount)}
}

func TestComputeStatsScenario(t *testing.T) {
	rows := []Expense{
		expense("2025-01-15", "Food", "50"),
		expense("2025-02-01", "Food", "30"),
		expense("2025-02-10", "Transport", "20"),
	}
	stats := ComputeStats(rows)

	if !stats.TotalExpenses.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total = %s, want 100", stats.TotalExpenses)
	}
	if len(stats.CategorySums) != 2 ||
		!stats.CategorySums["Food"].Equal(decimal.NewFromInt(80)) ||
		!stats.CategorySums["Transport"].Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected category sums: %v", stats.CategorySums)
	}
	want := []MonthTotal{
		{Month: "2025-02", Total: decimal.NewFromInt(50)},
		{Month: "2025-01", Total: decimal.NewFromInt(50)},
	}
	if len(stats.MonthlyData) != len(want) {
		t.Fatalf("monthly data = %v, want %v", stats.MonthlyData, want)
	}
	for i := range want {
		if stats.MonthlyData[i].Month != want[i].Month || !stats.MonthlyData[i].Total.Equal(want[i].Total) {
			t.Fatalf("monthly[%d] = %+v, want %+v", i, stats.MonthlyData[i], want[i])
		}
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	if !stats.TotalExpenses.IsZero() {
		t.Fatalf("expected zero total, got %s", stats.TotalExpenses)
	}
	if stats.CategorySums == nil || len(stats.CategorySums) != 0 {
		t.Fatalf("expected empty non-nil category map, got %v", stats.CategorySums)
	}
	if stats.MonthlyData == nil || len(stats.MonthlyData) != 0 {
		t.Fatalf("expected empty non-nil monthly data, got %v", stats.MonthlyData)
	}
}

func TestComputeStatsTotalIsArithmeticSum(t *testing.T) {
	rows := []Expense{
		expense("2025-01-01", "a", "0.1"),
		expense("2025-01-02", "b", "0.2"),
		expense("2025-01-03", "", "19.99"),
		expense("2025-01-04", "Unknown Thing", "1000000.01"),
	}
	stats := ComputeStats(rows)
	if !stats.TotalExpenses.Equal(decimal.RequireFromString("1000020.30")) {
		t.Fatalf("total = %s", stats.TotalExpenses)
	}
	if !stats.TotalExpenses.Equal(SumAmounts(rows)) {
		t.Fatalf("ComputeStats and SumAmounts disagree")
	}
	if !stats.CategorySums[""].Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("empty category not summed: %v", stats.CategorySums)
	}
}

func TestComputeStatsKeepsTwelveMostRecentMonths(t *testing.T) {
	var rows []Expense
	for m := 1; m <= 15; m++ {
		year := 2024 + (m-1)/12
		month := (m-1)%12 + 1
		rows = append(rows, expense(fmt.Sprintf("%04d-%02d-05", year, month), "x", "1"))
	}
	stats := ComputeStats(rows)
	if len(stats.MonthlyData) != MaxStatsMonths {
		t.Fatalf("expected %d months, got %d", MaxStatsMonths, len(stats.MonthlyData))
	}
	if stats.MonthlyData[0].Month != "2025-03" || stats.MonthlyData[11].Month != "2024-04" {
		t.Fatalf("unexpected window: first=%s last=%s", stats.MonthlyData[0].Month, stats.MonthlyData[11].Month)
	}
	// total still covers every row
	if !stats.TotalExpenses.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("total = %s", stats.TotalExpenses)
	}
}

func TestComputeBudgetProgress(t *testing.T) {
	p := ComputeBudgetProgress(decimal.NewFromInt(150), decimal.NewFromInt(100))
	if !p.Percentage.Equal(decimal.NewFromInt(150)) || !p.Remaining.Equal(decimal.NewFromInt(-50)) || !p.Exceeded {
		t.Fatalf("unexpected progress: %+v", p)
	}

	p = ComputeBudgetProgress(decimal.NewFromInt(40), decimal.Zero)
	if !p.Percentage.IsZero() {
		t.Fatalf("expected 0%% for zero budget, got %s", p.Percentage)
	}
	if !p.Remaining.Equal(decimal.NewFromInt(-40)) || !p.Exceeded {
		t.Fatalf("unexpected zero-budget progress: %+v", p)
	}

	p = ComputeBudgetProgress(decimal.NewFromInt(25), decimal.NewFromInt(100))
	if !p.Percentage.Equal(decimal.NewFromInt(25)) || !p.Remaining.Equal(decimal.NewFromInt(75)) || p.Exceeded {
		t.Fatalf("unexpected progress: %+v", p)
	}

	p = ComputeBudgetProgress(decimal.NewFromInt(100), decimal.NewFromInt(100))
	if p.Exceeded || !p.Remaining.IsZero() {
		t.Fatalf("spending exactly the budget is not exceeding it: %+v", p)
	}
}

func TestSortedCategoriesAndShare(t *testing.T) {
	sums := map[string]decimal.Decimal{
		"Food":      decimal.NewFromInt(80),
		"Bills":     decimal.NewFromInt(20),
		"Transport": decimal.NewFromInt(20),
	}
	got := SortedCategories(sums)
	if len(got) != 3 || got[0].Name != "Food" || got[1].Name != "Bills" || got[2].Name != "Transport" {
		t.Fatalf("unexpected order: %+v", got)
	}
	total := decimal.NewFromInt(120)
	if share := CategoryShare(got[0].Amount, total); share != 67 {
		t.Fatalf("share = %d, want 67", share)
	}
	if share := CategoryShare(decimal.NewFromInt(5), decimal.Zero); share != 0 {
		t.Fatalf("share with zero total = %d", share)
	}
}

func TestMonthBounds(t *testing.T) {
	first, last := MonthBounds(time.Date(2024, 2, 17, 23, 0, 0, 0, time.UTC))
	if first.String() != "2024-02-01" || last.String() != "2024-02-29" {
		t.Fatalf("unexpected bounds %s..%s", first, last)
	}
	first, last = MonthBounds(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	if first.String() != "2025-12-01" || last.String() != "2025-12-31" {
		t.Fatalf("unexpected bounds %s..%s", first, last)
	}
}
