// Package export converts expenses to and from the CSV layout used for
// backups and spreadsheet exchange:
//
//	Title,Amount,Category,Date,Description
//	"Lunch",12.5,"Food","2025-01-02","with ""friends"""
//
// Text fields are always quoted with embedded quotes doubled; the amount is
// written bare.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"spendbook/internal/core"
)

// Header is the first line of every export.
var Header = []string{"Title", "Amount", "Category", "Date", "Description"}

// ErrBadHeader is returned when the first record is not Header.
var ErrBadHeader = errors.New("csv header must be " + strings.Join(Header, ","))

// RowError reports a record that could not be turned into an expense.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("csv line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Write renders expenses in the given order and returns the number of rows
// written.
func Write(w io.Writer, expenses []core.Expense) (int, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Header, ",") + "\n"); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for i, e := range expenses {
		line := strings.Join([]string{
			quote(e.Title),
			e.Amount.String(),
			quote(e.Category),
			quote(e.Date.String()),
			quote(e.Description),
		}, ",")
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return i, fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(expenses), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Parse reads an export back into expense inputs. Amounts and dates are
// checked for shape only; business validation is left to the caller.
func Parse(r io.Reader) ([]core.ExpenseInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrBadHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range Header {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(head[i], "\ufeff")), h) {
			return nil, ErrBadHeader
		}
	}

	var out []core.ExpenseInput
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &RowError{Line: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		amount, err := core.ParseAmount(rec[1])
		if err != nil {
			return nil, &RowError{Line: line, Err: fmt.Errorf("amount %q: %w", rec[1], err)}
		}
		date, err := core.ParseDate(strings.TrimSpace(rec[3]))
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		out = append(out, core.ExpenseInput{
			Title:       rec[0],
			Amount:      amount,
			Category:    rec[2],
			Date:        date,
			Description: rec[4],
		})
	}
	return out, nil
}
