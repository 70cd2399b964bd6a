package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/pkg/database"
)

// ApprovalRepository is the append-only approval ledger. There is no update
// or delete path; the single-decision rule for manager/finance stages is also
// backed by a partial unique index.
type ApprovalRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *database.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

// Create appends a decision to the ledger
func (r *ApprovalRepository) Create(ctx context.Context, approval *entity.Approval) error {
	query := `
		INSERT INTO approvals (id, run_id, stage, decision, approver_id, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		approval.ID,
		approval.RunID,
		string(approval.Stage),
		string(approval.Decision),
		approval.ApproverID,
		approval.Reason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s stage %s: %w", approval.RunID, approval.Stage, entity.ErrStageAlreadyDecided)
		}
		r.logger.Error("Failed to append approval",
			zap.String("run_id", approval.RunID),
			zap.String("stage", string(approval.Stage)),
			zap.Error(err))
		return fmt.Errorf("failed to append approval: %w", err)
	}
	return nil
}

// ListByRun returns all ledger entries for a run in chronological order
func (r *ApprovalRepository) ListByRun(ctx context.Context, runID string) ([]*entity.Approval, error) {
	query := `
		SELECT id, run_id, stage, decision, approver_id, reason, created_at
		FROM approvals
		WHERE run_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, runID)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.String("run_id", runID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		var a entity.Approval
		var stage, decision string
		if err := rows.Scan(&a.ID, &a.RunID, &stage, &decision, &a.ApproverID, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		a.Stage = entity.Stage(stage)
		a.Decision = entity.Decision(decision)
		approvals = append(approvals, &a)
	}
	return approvals, rows.Err()
}

// CountByRunAndStage counts ledger entries for a run at a stage
func (r *ApprovalRepository) CountByRunAndStage(ctx context.Context, runID string, stage entity.Stage) (int, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approvals WHERE run_id = ? AND stage = ?`,
		runID, string(stage),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count approvals: %w", err)
	}
	return count, nil
}
