package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentType enumerates manual pay corrections.
type AdjustmentType string

const (
	AdjustmentBonus     AdjustmentType = "bonus"
	AdjustmentDeduction AdjustmentType = "deduction"
	AdjustmentBenefit   AdjustmentType = "benefit"
)

// IsValid returns true for a known adjustment type.
func (t AdjustmentType) IsValid() bool {
	switch t {
	case AdjustmentBonus, AdjustmentDeduction, AdjustmentBenefit:
		return true
	}
	return false
}

// Adjustment is a manual, specialist-entered correction to an employee's pay
// within a run. Deductions are stored negative regardless of the supplied
// sign; bonuses and benefits are stored positive.
type Adjustment struct {
	ID         int64
	RunID      string
	EmployeeID string
	Type       AdjustmentType
	Amount     decimal.Decimal
	Reason     string
	CreatedAt  time.Time
}

// NormalizeAmount applies the sign convention for the adjustment type.
func NormalizeAmount(t AdjustmentType, amount decimal.Decimal) decimal.Decimal {
	if t == AdjustmentDeduction {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}
