// Package calculation provides the default implementation of the pluggable
// calculation service. The engine only consumes its output; formulas here can
// be swapped for an external service without touching the lifecycle code.
package calculation

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
)

// penaltyRatioLimit flags penalties above half of base salary.
var penaltyRatioLimit = decimal.NewFromFloat(0.5)

// Calculator computes gross-to-net pay per employee from the employee master
// plus the run's adjustment ledger. Output is deterministic for unchanged
// inputs: employees are processed in id order and all arithmetic is decimal.
type Calculator struct {
	employeeRepo port.EmployeeRepository
	logger       *zap.Logger
}

// NewCalculator creates a new calculator
func NewCalculator(employeeRepo port.EmployeeRepository, logger *zap.Logger) *Calculator {
	return &Calculator{employeeRepo: employeeRepo, logger: logger}
}

// Calculate runs one calculation pass for the run.
func (c *Calculator) Calculate(ctx context.Context, run *entity.PayrollRun, adjustments []*entity.Adjustment) (*port.CalculationResult, error) {
	employees, err := c.employeeRepo.ListByEntity(ctx, run.Entity)
	if err != nil {
		return nil, fmt.Errorf("%w: loading employee master: %w", entity.ErrCalculationFailed, err)
	}

	// Adjustments grouped per employee; deductions are already stored negative.
	adjusted := make(map[string]decimal.Decimal, len(adjustments))
	for _, a := range adjustments {
		adjusted[a.EmployeeID] = adjusted[a.EmployeeID].Add(a.Amount)
	}

	result := &port.CalculationResult{
		TotalNetPay: decimal.Zero,
	}

	sort.Slice(employees, func(i, j int) bool { return employees[i].ID < employees[j].ID })

	for _, emp := range employees {
		line, exceptions := c.calculateLine(emp, adjusted[emp.ID])
		result.Lines = append(result.Lines, line)
		result.Exceptions = append(result.Exceptions, exceptions...)
		result.TotalNetPay = result.TotalNetPay.Add(line.Net)
	}

	result.Employees = len(employees)

	c.logger.Info("Calculation pass completed",
		zap.String("run_id", run.RunID),
		zap.Int("employees", result.Employees),
		zap.String("total_net_pay", result.TotalNetPay.String()),
		zap.Int("exceptions", len(result.Exceptions)))

	return result, nil
}

func (c *Calculator) calculateLine(emp *entity.Employee, adjustment decimal.Decimal) (port.PayLine, []port.ExceptionInput) {
	var exceptions []port.ExceptionInput

	if emp.BaseSalary.IsZero() {
		exceptions = append(exceptions, port.ExceptionInput{
			EmployeeID:  emp.ID,
			Type:        entity.ExceptionZeroBaseSalary,
			Description: fmt.Sprintf("employee %s has zero base salary", emp.ID),
		})
	}
	if emp.BaseSalary.IsNegative() {
		exceptions = append(exceptions, port.ExceptionInput{
			EmployeeID:  emp.ID,
			Type:        entity.ExceptionCalculationError,
			Description: fmt.Sprintf("employee %s has negative base salary %s", emp.ID, emp.BaseSalary),
		})
	}
	if emp.BankAccount == "" {
		exceptions = append(exceptions, port.ExceptionInput{
			EmployeeID:  emp.ID,
			Type:        entity.ExceptionMissingBankDetails,
			Description: fmt.Sprintf("employee %s has no bank account on file", emp.ID),
		})
	}
	if emp.BaseSalary.IsPositive() && emp.Penalties.GreaterThan(emp.BaseSalary.Mul(penaltyRatioLimit)) {
		exceptions = append(exceptions, port.ExceptionInput{
			EmployeeID:  emp.ID,
			Type:        entity.ExceptionExcessivePenalties,
			Description: fmt.Sprintf("employee %s penalties %s exceed half of base salary %s", emp.ID, emp.Penalties, emp.BaseSalary),
		})
	}

	gross := emp.BaseSalary.Add(emp.Allowances)
	if adjustment.IsPositive() {
		gross = gross.Add(adjustment)
	}

	deductions := emp.Penalties
	if adjustment.IsNegative() {
		deductions = deductions.Add(adjustment.Abs())
	}

	net := gross.Sub(deductions)
	if net.IsNegative() {
		exceptions = append(exceptions, port.ExceptionInput{
			EmployeeID:  emp.ID,
			Type:        entity.ExceptionNegativeNetPay,
			Description: fmt.Sprintf("employee %s net pay %s is negative", emp.ID, net),
		})
	}

	return port.PayLine{
		EmployeeID: emp.ID,
		FullName:   emp.FullName,
		Gross:      gross,
		Deductions: deductions,
		Net:        net,
	}, exceptions
}
