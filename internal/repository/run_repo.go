package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
	"github.com/corehr/payroll-engine/pkg/database"
)

// RunRepository handles payroll run database operations
type RunRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.DB, logger *zap.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `id, run_id, entity, payroll_period, status, employees,
	total_net_pay, exceptions_count, totals_stale, reject_reason, version,
	created_at, updated_at`

// Create inserts a new payroll run
func (r *RunRepository) Create(ctx context.Context, run *entity.PayrollRun) error {
	query := `
		INSERT INTO payroll_runs (
			run_id, entity, payroll_period, status, employees,
			total_net_pay, exceptions_count, totals_stale, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		run.RunID,
		run.Entity,
		run.PayrollPeriod,
		run.Status.String(),
		run.Employees,
		run.TotalNetPay.String(),
		run.ExceptionsCount,
		boolToInt(run.TotalsStale),
		run.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.RunID, entity.ErrDuplicateRun)
		}
		r.logger.Error("Failed to create run", zap.String("run_id", run.RunID), zap.Error(err))
		return fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// GetByRunID retrieves a payroll run by its caller-supplied key
func (r *RunRepository) GetByRunID(ctx context.Context, runID string) (*entity.PayrollRun, error) {
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE run_id = ?`

	run, err := r.scanRun(r.db.Executor(ctx).QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get run", zap.String("run_id", runID), zap.Error(err))
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListByStatus retrieves runs currently in the given state, oldest first
func (r *RunRepository) ListByStatus(ctx context.Context, status workflow.State) ([]*entity.PayrollRun, error) {
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE status = ? ORDER BY created_at ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, status.String())
	if err != nil {
		r.logger.Error("Failed to list runs", zap.String("status", status.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*entity.PayrollRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestByEntity returns the most recently created run for an entity, or
// ErrNotFound when the entity has none.
func (r *RunRepository) GetLatestByEntity(ctx context.Context, entityName string) (*entity.PayrollRun, error) {
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE entity = ? ORDER BY payroll_period DESC, created_at DESC LIMIT 1`

	run, err := r.scanRun(r.db.Executor(ctx).QueryRowContext(ctx, query, entityName))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s: %w", entityName, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// UpdateStatus applies a status transition guarded by an optimistic version
// check. The version is incremented in the same statement, so a concurrent
// writer observes ErrConcurrentUpdate instead of silently clobbering.
func (r *RunRepository) UpdateStatus(ctx context.Context, runID string, update port.RunStatusUpdate) error {
	query := `
		UPDATE payroll_runs
		SET status = ?,
		    reject_reason = COALESCE(?, reject_reason),
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		update.Status.String(),
		update.RejectReason,
		runID,
		update.ExpectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update run status", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("failed to update run status: %w", err)
	}

	return r.checkVersionedWrite(ctx, result, runID)
}

// UpdatePeriod changes the payroll period of a draft run
func (r *RunRepository) UpdatePeriod(ctx context.Context, runID, period string, expectedVersion int64) error {
	query := `
		UPDATE payroll_runs
		SET payroll_period = ?,
		    totals_stale = 1,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, period, runID, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update run period", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("failed to update run period: %w", err)
	}

	return r.checkVersionedWrite(ctx, result, runID)
}

// UpdateTotals stores the figures from a calculation pass
func (r *RunRepository) UpdateTotals(ctx context.Context, runID string, totals port.RunTotals, stale bool, expectedVersion int64) error {
	query := `
		UPDATE payroll_runs
		SET employees = ?,
		    total_net_pay = ?,
		    exceptions_count = ?,
		    totals_stale = ?,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		totals.Employees,
		totals.TotalNetPay.String(),
		totals.ExceptionsCount,
		boolToInt(stale),
		runID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update run totals", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("failed to update run totals: %w", err)
	}

	return r.checkVersionedWrite(ctx, result, runID)
}

// MarkTotalsStale flags cached totals as invalidated by an adjustment write
func (r *RunRepository) MarkTotalsStale(ctx context.Context, runID string) error {
	query := `
		UPDATE payroll_runs
		SET totals_stale = 1,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, runID)
	if err != nil {
		r.logger.Error("Failed to mark totals stale", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("failed to mark totals stale: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	return nil
}

// Delete removes a run. Callers enforce that only draft/rejected runs reach here.
func (r *RunRepository) Delete(ctx context.Context, runID string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM payroll_runs WHERE run_id = ?`, runID)
	if err != nil {
		r.logger.Error("Failed to delete run", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	return nil
}

func (r *RunRepository) checkVersionedWrite(ctx context.Context, result sql.Result, runID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var one int
	err = r.db.Executor(ctx).QueryRowContext(ctx, `SELECT 1 FROM payroll_runs WHERE run_id = ?`, runID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check run existence: %w", err)
	}
	return fmt.Errorf("run %s: %w", runID, entity.ErrConcurrentUpdate)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *RunRepository) scanRun(row rowScanner) (*entity.PayrollRun, error) {
	var run entity.PayrollRun
	var status, totalNetPay string
	var totalsStale int

	err := row.Scan(
		&run.ID,
		&run.RunID,
		&run.Entity,
		&run.PayrollPeriod,
		&status,
		&run.Employees,
		&totalNetPay,
		&run.ExceptionsCount,
		&totalsStale,
		&run.RejectReason,
		&run.Version,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = workflow.State(status)
	run.TotalsStale = totalsStale != 0
	run.TotalNetPay, err = decimal.NewFromString(totalNetPay)
	if err != nil {
		return nil, fmt.Errorf("invalid stored total_net_pay %q: %w", totalNetPay, err)
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
