// Package settings holds the user's display and budget preferences. They live
// in a small JSON file next to the database, never in the expense table.
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spendbook/internal/core"
)

// Settings are the user-adjustable preferences.
type Settings struct {
	Currency              string          `json:"currency"`
	MonthlyBudget         decimal.Decimal `json:"monthly_budget"`
	BudgetAlertPercentage int             `json:"budget_alert_percentage"`
	DefaultCategory       string          `json:"default_category"`
	BudgetEnabled         bool            `json:"budget_enabled"`
}

// Defaults returns the settings used before the user changes anything.
func Defaults() Settings {
	return Settings{
		Currency:              "USD",
		MonthlyBudget:         decimal.NewFromInt(1000),
		BudgetAlertPercentage: 80,
		DefaultCategory:       "Other",
		BudgetEnabled:         false,
	}
}

// Validate reports every problem with s at once.
func (s Settings) Validate() error {
	var errs []error

	if _, ok := core.LookupCurrency(s.Currency); !ok {
		errs = append(errs, fmt.Errorf("unknown currency %q", s.Currency))
	}
	if s.MonthlyBudget.IsNegative() {
		errs = append(errs, errors.New("monthly budget cannot be negative"))
	}
	if s.BudgetAlertPercentage < 1 || s.BudgetAlertPercentage > 100 {
		errs = append(errs, fmt.Errorf("budget alert percentage must be between 1 and 100, got %d", s.BudgetAlertPercentage))
	}
	if strings.TrimSpace(s.DefaultCategory) == "" {
		errs = append(errs, errors.New("default category cannot be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Currency              *string
	MonthlyBudget         *decimal.Decimal
	BudgetAlertPercentage *int
	DefaultCategory       *string
	BudgetEnabled         *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Currency == nil && p.MonthlyBudget == nil && p.BudgetAlertPercentage == nil &&
		p.DefaultCategory == nil && p.BudgetEnabled == nil
}

// Apply returns s with the patch applied. The result is not validated.
func (p Patch) Apply(s Settings) Settings {
	if p.Currency != nil {
		s.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.MonthlyBudget != nil {
		s.MonthlyBudget = *p.MonthlyBudget
	}
	if p.BudgetAlertPercentage != nil {
		s.BudgetAlertPercentage = *p.BudgetAlertPercentage
	}
	if p.DefaultCategory != nil {
		s.DefaultCategory = strings.TrimSpace(*p.DefaultCategory)
	}
	if p.BudgetEnabled != nil {
		s.BudgetEnabled = *p.BudgetEnabled
	}
	return s
}
