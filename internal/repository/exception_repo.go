package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/pkg/database"
)

// ExceptionRepository tracks per-employee payroll exceptions. Records are
// never deleted; recalculation replaces only the open set.
type ExceptionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewExceptionRepository creates a new exception repository
func NewExceptionRepository(db *database.DB, logger *zap.Logger) *ExceptionRepository {
	return &ExceptionRepository{db: db, logger: logger}
}

// ReplaceOpen removes the current open set for the run and inserts the
// freshly derived one. Resolved records stay untouched for audit. Severity is
// derived here so stored rows always match the type mapping.
func (r *ExceptionRepository) ReplaceOpen(ctx context.Context, runID string, inputs []port.ExceptionInput) error {
	ex := r.db.Executor(ctx)

	if _, err := ex.ExecContext(ctx,
		`DELETE FROM payroll_exceptions WHERE run_id = ? AND status = ?`,
		runID, string(entity.ExceptionOpen),
	); err != nil {
		r.logger.Error("Failed to clear open exceptions", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("failed to clear open exceptions: %w", err)
	}

	query := `
		INSERT INTO payroll_exceptions (run_id, employee_id, type, severity, description, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, input := range inputs {
		severity := entity.SeverityFor(input.Type)
		if _, err := ex.ExecContext(ctx, query,
			runID,
			input.EmployeeID,
			string(input.Type),
			string(severity),
			input.Description,
			string(entity.ExceptionOpen),
		); err != nil {
			r.logger.Error("Failed to insert exception",
				zap.String("run_id", runID),
				zap.String("employee_id", input.EmployeeID),
				zap.Error(err))
			return fmt.Errorf("failed to insert exception: %w", err)
		}
	}
	return nil
}

// ResolveOpenByEmployee transitions all open exceptions for the employee to
// resolved and returns how many were affected.
func (r *ExceptionRepository) ResolveOpenByEmployee(ctx context.Context, runID, employeeID, note string, at time.Time) (int, error) {
	query := `
		UPDATE payroll_exceptions
		SET status = ?, resolution_note = ?, resolved_at = ?
		WHERE run_id = ? AND employee_id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(entity.ExceptionResolved),
		note,
		at,
		runID,
		employeeID,
		string(entity.ExceptionOpen),
	)
	if err != nil {
		r.logger.Error("Failed to resolve exceptions",
			zap.String("run_id", runID),
			zap.String("employee_id", employeeID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to resolve exceptions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// ListByRun returns every exception record for a run, open and resolved
func (r *ExceptionRepository) ListByRun(ctx context.Context, runID string) ([]*entity.Exception, error) {
	query := `
		SELECT id, run_id, employee_id, type, severity, description, status,
		       resolution_note, created_at, resolved_at
		FROM payroll_exceptions
		WHERE run_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, runID)
	if err != nil {
		r.logger.Error("Failed to list exceptions", zap.String("run_id", runID), zap.Error(err))
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	defer rows.Close()

	var exceptions []*entity.Exception
	for rows.Next() {
		var e entity.Exception
		var typ, severity, status string
		var resolvedAt *time.Time
		if err := rows.Scan(&e.ID, &e.RunID, &e.EmployeeID, &typ, &severity,
			&e.Description, &status, &e.ResolutionNote, &e.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}
		e.Type = entity.ExceptionType(typ)
		e.Severity = entity.Severity(severity)
		e.Status = entity.ExceptionStatus(status)
		e.ResolvedAt = resolvedAt
		exceptions = append(exceptions, &e)
	}
	return exceptions, rows.Err()
}

// CountOpenBySeverity counts open exceptions of the given severity for a run
func (r *ExceptionRepository) CountOpenBySeverity(ctx context.Context, runID string, severity entity.Severity) (int, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payroll_exceptions WHERE run_id = ? AND status = ? AND severity = ?`,
		runID, string(entity.ExceptionOpen), string(severity),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open exceptions: %w", err)
	}
	return count, nil
}
