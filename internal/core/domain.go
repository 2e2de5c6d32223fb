package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk format of an expense date. Values in this layout
// sort chronologically under plain string comparison.
const DateLayout = "2006-01-02"

// MonthLayout is the key format used for monthly buckets.
const MonthLayout = "2006-01"

type (
	// Date is a calendar day without a time component.
	Date struct {
		time.Time
	}

	// Expense is one stored spending event.
	Expense struct {
		ID          int64
		Title       string
		Amount      decimal.Decimal
		Category    string
		Date        Date
		Description string // optional, empty when absent
		CreatedAt   time.Time
	}

	// ExpenseInput holds the mutable fields of an expense, used for add and update.
	ExpenseInput struct {
		Title       string
		Amount      decimal.Decimal
		Category    string
		Date        Date
		Description string
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrFutureDate    = errors.New("date is in the future")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyCategory = errors.New("empty category")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String returns the ISO calendar form used for storage.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM bucket the date belongs to.
func (d Date) MonthKey() string {
	return d.Format(MonthLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Input returns the mutable part of the expense.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		Title:       e.Title,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
	}
}

// Validate applies the checks the entry forms enforce before anything reaches
// the store. now decides what "future" means.
func (in ExpenseInput) Validate(now time.Time) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrEmptyTitle
	}
	if len(in.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if in.Date.String() > DateOf(now).String() {
		return ErrFutureDate
	}
	return nil
}
