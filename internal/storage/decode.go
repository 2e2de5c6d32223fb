package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendbook/internal/core"
)

// createdAtLayouts are the timestamp shapes found in created_at. The first is
// what this package writes; the others come from older app versions.
var createdAtLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05",
}

var requiredColumns = []string{"id", "title", "amount", "category", "date"}

// scanExpenses decodes every row of rs into typed expenses.
func scanExpenses(rs *sql.Rows) ([]core.Expense, error) {
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[strings.ToLower(c)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			return nil, &DecodeError{Column: c, Reason: "column missing from result"}
		}
	}

	out := []core.Expense{}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e, err := decodeExpense(index, values)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func decodeExpense(index map[string]int, values []any) (core.Expense, error) {
	var (
		e   core.Expense
		err error
	)
	col := func(name string) (any, bool) {
		i, ok := index[name]
		if !ok {
			return nil, false
		}
		return values[i], true
	}

	v, _ := col("id")
	if e.ID, err = asInt64("id", v); err != nil {
		return e, err
	}
	v, _ = col("title")
	if e.Title, err = asText("title", v, false); err != nil {
		return e, err
	}
	v, _ = col("amount")
	if e.Amount, err = asDecimal("amount", v); err != nil {
		return e, err
	}
	v, _ = col("category")
	if e.Category, err = asText("category", v, false); err != nil {
		return e, err
	}
	v, _ = col("date")
	raw, err := asText("date", v, false)
	if err != nil {
		return e, err
	}
	if e.Date, err = core.ParseDate(raw); err != nil {
		return e, &DecodeError{Column: "date", Reason: fmt.Sprintf("not a YYYY-MM-DD date: %q", raw)}
	}
	if v, ok := col("description"); ok {
		if e.Description, err = asText("description", v, true); err != nil {
			return e, err
		}
	}
	if v, ok := col("created_at"); ok {
		if e.CreatedAt, err = asTimestamp("created_at", v); err != nil {
			return e, err
		}
	}
	return e, nil
}

func asInt64(column string, v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case nil:
		return 0, &DecodeError{Column: column, Reason: "unexpected NULL"}
	default:
		return 0, &DecodeError{Column: column, Reason: fmt.Sprintf("expected integer, got %T", v)}
	}
}

func asText(column string, v any, nullable bool) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case nil:
		if nullable {
			return "", nil
		}
		return "", &DecodeError{Column: column, Reason: "unexpected NULL"}
	default:
		return "", &DecodeError{Column: column, Reason: fmt.Sprintf("expected text, got %T", v)}
	}
}

func asDecimal(column string, v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, &DecodeError{Column: column, Reason: fmt.Sprintf("not a number: %q", x)}
		}
		return d, nil
	case nil:
		return decimal.Zero, &DecodeError{Column: column, Reason: "unexpected NULL"}
	default:
		return decimal.Zero, &DecodeError{Column: column, Reason: fmt.Sprintf("expected number, got %T", v)}
	}
}

func asTimestamp(column string, v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case int64:
		return time.Unix(x, 0), nil
	case []byte:
		return parseTimestamp(column, string(x))
	case string:
		return parseTimestamp(column, x)
	default:
		return time.Time{}, &DecodeError{Column: column, Reason: fmt.Sprintf("expected timestamp, got %T", v)}
	}
}

func parseTimestamp(column, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, &DecodeError{Column: column, Reason: fmt.Sprintf("unrecognized timestamp %q", s)}
}

// formatTimestamp is the inverse of the first createdAtLayouts entry.
func formatTimestamp(t time.Time) string {
	return t.In(time.Local).Format(createdAtLayouts[0])
}
