package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/pkg/database"
)

// AdjustmentRepository holds the manual adjustment ledger
type AdjustmentRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAdjustmentRepository creates a new adjustment repository
func NewAdjustmentRepository(db *database.DB, logger *zap.Logger) *AdjustmentRepository {
	return &AdjustmentRepository{db: db, logger: logger}
}

// Create appends an adjustment to the ledger
func (r *AdjustmentRepository) Create(ctx context.Context, adjustment *entity.Adjustment) error {
	query := `
		INSERT INTO payroll_adjustments (run_id, employee_id, type, amount, reason)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		adjustment.RunID,
		adjustment.EmployeeID,
		string(adjustment.Type),
		adjustment.Amount.String(),
		adjustment.Reason,
	)
	if err != nil {
		r.logger.Error("Failed to create adjustment",
			zap.String("run_id", adjustment.RunID),
			zap.String("employee_id", adjustment.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create adjustment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	adjustment.ID = id
	return nil
}

// ListByRun returns all adjustments for a run in entry order
func (r *AdjustmentRepository) ListByRun(ctx context.Context, runID string) ([]*entity.Adjustment, error) {
	query := `
		SELECT id, run_id, employee_id, type, amount, reason, created_at
		FROM payroll_adjustments
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, runID)
	if err != nil {
		r.logger.Error("Failed to list adjustments", zap.String("run_id", runID), zap.Error(err))
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*entity.Adjustment
	for rows.Next() {
		var a entity.Adjustment
		var typ, amount string
		if err := rows.Scan(&a.ID, &a.RunID, &a.EmployeeID, &typ, &amount, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Type = entity.AdjustmentType(typ)
		a.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		adjustments = append(adjustments, &a)
	}
	return adjustments, rows.Err()
}
