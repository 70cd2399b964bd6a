package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/corehr/payroll-engine/internal/domain/entity"
)

// PayLine is one employee's computed pay for a run.
type PayLine struct {
	EmployeeID string
	FullName   string
	Gross      decimal.Decimal
	Deductions decimal.Decimal
	Net        decimal.Decimal
}

// CalculationResult is the output of one calculation pass. The engine trusts
// it; formulas are the calculation service's concern.
type CalculationResult struct {
	Employees   int
	TotalNetPay decimal.Decimal
	Lines       []PayLine
	Exceptions  []ExceptionInput
}

// Calculator is the pluggable calculation service. Implementations must be
// deterministic for unchanged inputs so exception flagging stays idempotent.
type Calculator interface {
	Calculate(ctx context.Context, run *entity.PayrollRun, adjustments []*entity.Adjustment) (*CalculationResult, error)
}
