package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendbook/internal/core"
)

var fixedNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.Local)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "data", "expenses.db"), WithClock(func() time.Time { return fixedNow }))
	outcome, err := s.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if outcome.Degraded || outcome.SchemaVersion != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func input(title, amount, category, date, desc string) core.ExpenseInput {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.ExpenseInput{
		Title:       title,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Date:        d,
		Description: desc,
	}
}

func mustAdd(t *testing.T, s *Store, in core.ExpenseInput) int64 {
	t.Helper()
	id, err := s.Add(context.Background(), in)
	if err != nil {
		t.Fatalf("add %q: %v", in.Title, err)
	}
	return id
}

func assertInput(t *testing.T, got core.Expense, want core.ExpenseInput) {
	t.Helper()
	if got.Title != want.Title || !got.Amount.Equal(want.Amount) || got.Category != want.Category ||
		got.Date.String() != want.Date.String() || got.Description != want.Description {
		t.Fatalf("expense mismatch:\n got  %+v\n want %+v", got.Input(), want)
	}
}

func TestAddThenGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []core.ExpenseInput{
		input("Lunch", "12.34", "Food", "2025-02-28", "sandwich"),
		input("Bus", "2.4", "Transportation", "2025-01-01", ""),
		input("Custom thing", "1000000.01", "My Own Category", "2024-12-31", "quotes \" and, commas"),
		input("Tiny", "0.001", "Other", "2025-03-01", "three decimals"),
	}
	for _, in := range cases {
		id := mustAdd(t, s, in)
		got, ok, err := s.GetByID(ctx, id)
		if err != nil || !ok {
			t.Fatalf("get %d: ok=%v err=%v", id, ok, err)
		}
		if got.ID != id {
			t.Fatalf("id = %d, want %d", got.ID, id)
		}
		assertInput(t, got, in)
		if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(fixedNow) {
			t.Fatalf("created_at = %v, want %v", got.CreatedAt, fixedNow)
		}
	}
}

func TestGetByIDMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	got, ok, err := s.GetByID(context.Background(), 42)
	if err != nil || ok || got.ID != 0 {
		t.Fatalf("expected empty result, got %+v ok=%v err=%v", got, ok, err)
	}
}

func TestGetAllOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustAdd(t, s, input("a", "1", "x", "2025-01-10", ""))
	b := mustAdd(t, s, input("b", "1", "x", "2025-02-01", ""))
	c := mustAdd(t, s, input("c", "1", "x", "2025-01-10", ""))
	d := mustAdd(t, s, input("d", "1", "x", "2024-12-31", ""))

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	want := []int64{b, c, a, d}
	if len(all) != len(want) {
		t.Fatalf("got %d rows, want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Fatalf("position %d: id %d, want %d", i, all[i].ID, id)
		}
	}
}

func TestUpdateAndDeleteCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := []int64{
		mustAdd(t, s, input("one", "1", "x", "2025-01-01", "")),
		mustAdd(t, s, input("two", "2", "x", "2025-01-02", "")),
		mustAdd(t, s, input("three", "3", "x", "2025-01-03", "")),
	}

	changed := input("two (edited)", "22.5", "y", "2025-01-05", "now with description")
	ok, err := s.Update(ctx, ids[1], changed)
	if err != nil || !ok {
		t.Fatalf("update existing: ok=%v err=%v", ok, err)
	}
	got, _, _ := s.GetByID(ctx, ids[1])
	assertInput(t, got, changed)
	if !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("update must not touch created_at: %v", got.CreatedAt)
	}

	before, _ := s.GetAll(ctx)
	ok, err = s.Update(ctx, 9999, changed)
	if err != nil || ok {
		t.Fatalf("update missing: ok=%v err=%v", ok, err)
	}
	after, _ := s.GetAll(ctx)
	if len(before) != len(after) {
		t.Fatalf("update of missing id changed row count")
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Title != after[i].Title {
			t.Fatalf("update of missing id changed rows")
		}
	}

	ok, err = s.Delete(ctx, ids[0])
	if err != nil || !ok {
		t.Fatalf("delete existing: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(ctx, ids[0])
	if err != nil || ok {
		t.Fatalf("second delete should be a no-op: ok=%v err=%v", ok, err)
	}

	all, _ := s.GetAll(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 3 adds - 1 delete = 2 rows, got %d", len(all))
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("count = %d", n)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inTitle := mustAdd(t, s, input("Grocery run", "10", "Food", "2025-01-01", ""))
	inDesc := mustAdd(t, s, input("Market", "11", "Food", "2025-01-03", "weekly GROCERY shopping"))
	inCat := mustAdd(t, s, input("Corner shop", "12", "grocery store", "2025-01-02", ""))
	mustAdd(t, s, input("Cinema", "13", "Entertainment", "2025-01-04", "film night"))

	got, err := s.Search(ctx, "grocery")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []int64{inDesc, inCat, inTitle}
	if len(got) != len(want) {
		t.Fatalf("got %d matches, want %d: %+v", len(got), len(want), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("match %d: id %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestSearchWildcardsMatchLiterally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := mustAdd(t, s, input("50% off shoes", "40", "Shopping", "2025-01-01", ""))
	mustAdd(t, s, input("500 off nothing", "40", "Shopping", "2025-01-01", ""))
	under := mustAdd(t, s, input("snake_case", "1", "Other", "2025-01-01", ""))
	mustAdd(t, s, input("snakeXcase", "1", "Other", "2025-01-01", ""))

	got, err := s.Search(ctx, "50%")
	if err != nil || len(got) != 1 || got[0].ID != sale {
		t.Fatalf("search 50%%: %+v err=%v", got, err)
	}
	got, err = s.Search(ctx, "e_c")
	if err != nil || len(got) != 1 || got[0].ID != under {
		t.Fatalf("search e_c: %+v err=%v", got, err)
	}
}

func TestGetByDateRangeInclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, input("before", "1", "x", "2025-01-31", ""))
	first := mustAdd(t, s, input("first", "1", "x", "2025-02-01", ""))
	mid := mustAdd(t, s, input("mid", "1", "x", "2025-02-14", ""))
	last := mustAdd(t, s, input("last", "1", "x", "2025-02-28", ""))
	mustAdd(t, s, input("after", "1", "x", "2025-03-01", ""))

	got, err := s.GetByDateRange(ctx, core.NewDate(2025, 2, 1), core.NewDate(2025, 2, 28))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	want := []int64{last, mid, first}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("row %d: id %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, s, input("a", "1", "x", "2025-01-01", ""))
	mustAdd(t, s, input("b", "1", "x", "2025-01-01", ""))

	n, err := s.ClearAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("clear: n=%d err=%v", n, err)
	}
	all, err := s.GetAll(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty store, got %d rows err=%v", len(all), err)
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "expenses.db"))
	ctx := context.Background()

	if _, err := s.GetAll(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("GetAll: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.Add(ctx, input("a", "1", "x", "2025-01-01", "")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Add: expected ErrNotInitialized, got %v", err)
	}
	if _, _, err := s.GetByID(ctx, 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("GetByID: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.Update(ctx, 1, input("a", "1", "x", "2025-01-01", "")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Update: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.Delete(ctx, 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Delete: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.Search(ctx, "a"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Search: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.ClearAll(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("ClearAll: expected ErrNotInitialized, got %v", err)
	}
	if s.Ready() {
		t.Fatalf("store should not be ready")
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, s, input("a", "1", "x", "2025-01-01", ""))

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("database file should be gone, stat err=%v", err)
	}
	if _, err := s.GetAll(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after reset, got %v", err)
	}

	if _, err := s.Initialize(ctx); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	all, err := s.GetAll(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty store after reset, got %d rows err=%v", len(all), err)
	}

	// reset without an open handle only removes files
	s.Close()
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset closed store: %v", err)
	}
}

func TestInitializeTwiceKeepsRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustAdd(t, s, input("keep me", "5", "x", "2025-01-01", ""))

	outcome, err := s.Initialize(ctx)
	if err != nil || outcome.AddedCreatedAt || outcome.Rebuilt {
		t.Fatalf("second initialize: %+v err=%v", outcome, err)
	}
	if _, ok, _ := s.GetByID(ctx, id); !ok {
		t.Fatalf("row lost after re-initialize")
	}
}
