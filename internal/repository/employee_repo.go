package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/pkg/database"
)

// EmployeeRepository reads the employee master. The engine never writes it;
// profile administration is a separate system.
type EmployeeRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *database.DB, logger *zap.Logger) *EmployeeRepository {
	return &EmployeeRepository{db: db, logger: logger}
}

// ListByEntity returns the employees of an entity ordered by id, so
// calculation passes see a stable input order.
func (r *EmployeeRepository) ListByEntity(ctx context.Context, entityName string) ([]*entity.Employee, error) {
	query := `
		SELECT id, entity, full_name, bank_account, base_salary, allowances, penalties
		FROM employees
		WHERE entity = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, entityName)
	if err != nil {
		r.logger.Error("Failed to list employees", zap.String("entity", entityName), zap.Error(err))
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []*entity.Employee
	for rows.Next() {
		var e entity.Employee
		var baseSalary, allowances, penalties string
		if err := rows.Scan(&e.ID, &e.Entity, &e.FullName, &e.BankAccount,
			&baseSalary, &allowances, &penalties); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		if e.BaseSalary, err = decimal.NewFromString(baseSalary); err != nil {
			return nil, fmt.Errorf("invalid stored base_salary %q: %w", baseSalary, err)
		}
		if e.Allowances, err = decimal.NewFromString(allowances); err != nil {
			return nil, fmt.Errorf("invalid stored allowances %q: %w", allowances, err)
		}
		if e.Penalties, err = decimal.NewFromString(penalties); err != nil {
			return nil, fmt.Errorf("invalid stored penalties %q: %w", penalties, err)
		}
		employees = append(employees, &e)
	}
	return employees, rows.Err()
}
