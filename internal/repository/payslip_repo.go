package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/pkg/database"
)

// PayslipRepository persists payslip generation batches
type PayslipRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPayslipRepository creates a new payslip repository
func NewPayslipRepository(db *database.DB, logger *zap.Logger) *PayslipRepository {
	return &PayslipRepository{db: db, logger: logger}
}

const batchColumns = `id, run_id, fingerprint, status, file_path, employee_count,
	failure_reason, created_at, generated_at, distributed_at`

// Create inserts a new generation batch. The (run_id, fingerprint) unique
// constraint is what makes generation re-invocation safe.
func (r *PayslipRepository) Create(ctx context.Context, batch *entity.PayslipBatch) error {
	query := `
		INSERT INTO payslip_batches (id, run_id, fingerprint, status, employee_count)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		batch.ID,
		batch.RunID,
		batch.Fingerprint,
		string(batch.Status),
		batch.EmployeeCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s fingerprint %s: %w", batch.RunID, batch.Fingerprint, entity.ErrConcurrentUpdate)
		}
		r.logger.Error("Failed to create payslip batch", zap.String("run_id", batch.RunID), zap.Error(err))
		return fmt.Errorf("failed to create payslip batch: %w", err)
	}
	return nil
}

// GetByFingerprint returns the batch for a run/fingerprint pair, or ErrNotFound
func (r *PayslipRepository) GetByFingerprint(ctx context.Context, runID, fingerprint string) (*entity.PayslipBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM payslip_batches WHERE run_id = ? AND fingerprint = ?`

	batch, err := r.scanBatch(r.db.Executor(ctx).QueryRowContext(ctx, query, runID, fingerprint))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payslip batch: %w", err)
	}
	return batch, nil
}

// GetLatestByRun returns the most recent batch for a run, or ErrNotFound
func (r *PayslipRepository) GetLatestByRun(ctx context.Context, runID string) (*entity.PayslipBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM payslip_batches WHERE run_id = ? ORDER BY created_at DESC LIMIT 1`

	batch, err := r.scanBatch(r.db.Executor(ctx).QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payslip batch: %w", err)
	}
	return batch, nil
}

// ListPending returns batches awaiting generation, oldest first
func (r *PayslipRepository) ListPending(ctx context.Context, limit int) ([]*entity.PayslipBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM payslip_batches WHERE status = ? ORDER BY created_at ASC LIMIT ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, string(entity.PayslipPending), limit)
	if err != nil {
		r.logger.Error("Failed to list pending batches", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending batches: %w", err)
	}
	defer rows.Close()

	var batches []*entity.PayslipBatch
	for rows.Next() {
		batch, err := r.scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payslip batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// MarkGenerated records a finished render
func (r *PayslipRepository) MarkGenerated(ctx context.Context, id, filePath string, at time.Time) error {
	return r.markStatus(ctx, id,
		`UPDATE payslip_batches SET status = ?, file_path = ?, generated_at = ? WHERE id = ?`,
		string(entity.PayslipGenerated), filePath, at, id)
}

// MarkDistributed records a finished distribution
func (r *PayslipRepository) MarkDistributed(ctx context.Context, id string, at time.Time) error {
	return r.markStatus(ctx, id,
		`UPDATE payslip_batches SET status = ?, distributed_at = ? WHERE id = ?`,
		string(entity.PayslipDistributed), at, id)
}

// MarkFailed records a failed render so the batch is not retried blindly
func (r *PayslipRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.markStatus(ctx, id,
		`UPDATE payslip_batches SET status = ?, failure_reason = ? WHERE id = ?`,
		string(entity.PayslipFailed), reason, id)
}

func (r *PayslipRepository) markStatus(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update payslip batch", zap.String("batch_id", id), zap.Error(err))
		return fmt.Errorf("failed to update payslip batch: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("batch %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (r *PayslipRepository) scanBatch(row rowScanner) (*entity.PayslipBatch, error) {
	var b entity.PayslipBatch
	var status string
	var generatedAt, distributedAt *time.Time

	err := row.Scan(
		&b.ID,
		&b.RunID,
		&b.Fingerprint,
		&status,
		&b.FilePath,
		&b.EmployeeCount,
		&b.FailureReason,
		&b.CreatedAt,
		&generatedAt,
		&distributedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = entity.PayslipBatchStatus(status)
	b.GeneratedAt = generatedAt
	b.DistributedAt = distributedAt
	return &b, nil
}
