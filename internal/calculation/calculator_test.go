package calculation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/domain/entity"
)

type fakeEmployeeRepo struct {
	employees []*entity.Employee
	err       error
}

func (f *fakeEmployeeRepo) ListByEntity(ctx context.Context, entityName string) ([]*entity.Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.employees, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRun() *entity.PayrollRun {
	return &entity.PayrollRun{RunID: "PR-1", Entity: "acme", PayrollPeriod: "2025-09"}
}

func TestCalculateGrossToNet(t *testing.T) {
	repo := &fakeEmployeeRepo{employees: []*entity.Employee{
		{ID: "emp-1", Entity: "acme", FullName: "Dana Ortiz", BankAccount: "111",
			BaseSalary: dec("5000"), Allowances: dec("500"), Penalties: dec("200")},
	}}
	calc := NewCalculator(repo, zap.NewNop())

	result, err := calc.Calculate(context.Background(), testRun(), nil)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)

	line := result.Lines[0]
	assert.Equal(t, "5500", line.Gross.String())
	assert.Equal(t, "200", line.Deductions.String())
	assert.Equal(t, "5300", line.Net.String())
	assert.Equal(t, "5300", result.TotalNetPay.String())
	assert.Equal(t, 1, result.Employees)
	assert.Empty(t, result.Exceptions)
}

func TestCalculateAppliesAdjustments(t *testing.T) {
	repo := &fakeEmployeeRepo{employees: []*entity.Employee{
		{ID: "emp-1", Entity: "acme", BankAccount: "111",
			BaseSalary: dec("5000"), Allowances: dec("0"), Penalties: dec("0")},
	}}
	calc := NewCalculator(repo, zap.NewNop())

	adjustments := []*entity.Adjustment{
		{RunID: "PR-1", EmployeeID: "emp-1", Type: entity.AdjustmentBonus, Amount: dec("300")},
		{RunID: "PR-1", EmployeeID: "emp-1", Type: entity.AdjustmentDeduction, Amount: dec("-100")},
	}

	result, err := calc.Calculate(context.Background(), testRun(), adjustments)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)

	// Net adjustment is +200, applied on the gross side.
	line := result.Lines[0]
	assert.Equal(t, "5200", line.Gross.String())
	assert.Equal(t, "0", line.Deductions.String())
	assert.Equal(t, "5200", line.Net.String())
}

func TestCalculateNetNegativeAdjustment(t *testing.T) {
	repo := &fakeEmployeeRepo{employees: []*entity.Employee{
		{ID: "emp-1", Entity: "acme", BankAccount: "111",
			BaseSalary: dec("1000"), Allowances: dec("0"), Penalties: dec("0")},
	}}
	calc := NewCalculator(repo, zap.NewNop())

	adjustments := []*entity.Adjustment{
		{RunID: "PR-1", EmployeeID: "emp-1", Type: entity.AdjustmentDeduction, Amount: dec("-400")},
	}

	result, err := calc.Calculate(context.Background(), testRun(), adjustments)
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, "1000", result.Lines[0].Gross.String())
	assert.Equal(t, "400", result.Lines[0].Deductions.String())
	assert.Equal(t, "600", result.Lines[0].Net.String())
}

func TestCalculateExceptions(t *testing.T) {
	repo := &fakeEmployeeRepo{employees: []*entity.Employee{
		{ID: "emp-zero", Entity: "acme", BankAccount: "111",
			BaseSalary: dec("0"), Allowances: dec("0"), Penalties: dec("0")},
		{ID: "emp-negative", Entity: "acme", BankAccount: "222",
			BaseSalary: dec("-100"), Allowances: dec("0"), Penalties: dec("0")},
		{ID: "emp-nobank", Entity: "acme",
			BaseSalary: dec("3000"), Allowances: dec("0"), Penalties: dec("0")},
		{ID: "emp-penalized", Entity: "acme", BankAccount: "333",
			BaseSalary: dec("2000"), Allowances: dec("0"), Penalties: dec("1500")},
	}}
	calc := NewCalculator(repo, zap.NewNop())

	result, err := calc.Calculate(context.Background(), testRun(), nil)
	require.NoError(t, err)

	byEmployee := map[string][]entity.ExceptionType{}
	for _, e := range result.Exceptions {
		byEmployee[e.EmployeeID] = append(byEmployee[e.EmployeeID], e.Type)
	}

	assert.Contains(t, byEmployee["emp-zero"], entity.ExceptionZeroBaseSalary)
	assert.Contains(t, byEmployee["emp-negative"], entity.ExceptionCalculationError)
	assert.Contains(t, byEmployee["emp-negative"], entity.ExceptionNegativeNetPay)
	assert.Contains(t, byEmployee["emp-nobank"], entity.ExceptionMissingBankDetails)
	assert.Contains(t, byEmployee["emp-penalized"], entity.ExceptionExcessivePenalties)
}

func TestCalculatePenaltyLimitIsExclusive(t *testing.T) {
	repo := &fakeEmployeeRepo{employees: []*entity.Employee{
		{ID: "emp-1", Entity: "acme", BankAccount: "111",
			BaseSalary: dec("2000"), Allowances: dec("0"), Penalties: dec("1000")},
	}}
	calc := NewCalculator(repo, zap.NewNop())

	result, err := calc.Calculate(context.Background(), testRun(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Exceptions, "penalties at exactly half of base are allowed")
}

func TestCalculateDeterministicOrdering(t *testing.T) {
	repo := &fakeEmployeeRepo{employees: []*entity.Employee{
		{ID: "emp-3", Entity: "acme", BankAccount: "3", BaseSalary: dec("100")},
		{ID: "emp-1", Entity: "acme", BankAccount: "1", BaseSalary: dec("100")},
		{ID: "emp-2", Entity: "acme", BankAccount: "2", BaseSalary: dec("100")},
	}}
	calc := NewCalculator(repo, zap.NewNop())

	result, err := calc.Calculate(context.Background(), testRun(), nil)
	require.NoError(t, err)
	require.Len(t, result.Lines, 3)
	assert.Equal(t, "emp-1", result.Lines[0].EmployeeID)
	assert.Equal(t, "emp-2", result.Lines[1].EmployeeID)
	assert.Equal(t, "emp-3", result.Lines[2].EmployeeID)
}

func TestCalculateRepositoryFailure(t *testing.T) {
	repo := &fakeEmployeeRepo{err: errors.New("db closed")}
	calc := NewCalculator(repo, zap.NewNop())

	_, err := calc.Calculate(context.Background(), testRun(), nil)
	assert.ErrorIs(t, err, entity.ErrCalculationFailed)
}
