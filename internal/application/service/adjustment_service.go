package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

// AdjustmentService maintains the manual adjustment ledger of a run
type AdjustmentService interface {
	CreatePayrollAdjustment(ctx context.Context, actor entity.Actor, runID, employeeID string, adjType entity.AdjustmentType, amount, reason string) (*entity.Adjustment, error)
	GetPayrollAdjustments(ctx context.Context, runID string) ([]*entity.Adjustment, error)
}

type adjustmentServiceImpl struct {
	runRepo        port.RunRepository
	adjustmentRepo port.AdjustmentRepository
	txManager      port.TransactionManager
	locks          *RunLocks
	logger         Logger
}

// NewAdjustmentService creates a new AdjustmentService
func NewAdjustmentService(
	runRepo port.RunRepository,
	adjustmentRepo port.AdjustmentRepository,
	txManager port.TransactionManager,
	locks *RunLocks,
	logger Logger,
) AdjustmentService {
	return &adjustmentServiceImpl{
		runRepo:        runRepo,
		adjustmentRepo: adjustmentRepo,
		txManager:      txManager,
		locks:          locks,
		logger:         logger,
	}
}

// CreatePayrollAdjustment appends one adjustment to the run's ledger and
// marks the cached totals stale. The amount is normalized to the type's sign
// convention; deductions end up negative, bonuses and benefits positive.
func (s *adjustmentServiceImpl) CreatePayrollAdjustment(ctx context.Context, actor entity.Actor, runID, employeeID string, adjType entity.AdjustmentType, amount, reason string) (*entity.Adjustment, error) {
	if err := requireRole(actor, "createPayrollAdjustment", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}
	if !adjType.IsValid() {
		return nil, fmt.Errorf("%w: unknown adjustment type %q", entity.ErrInvalidAmount, adjType)
	}
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employee id is required", entity.ErrInvalidAmount)
	}

	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", entity.ErrInvalidAmount, amount)
	}
	if value.IsZero() {
		return nil, fmt.Errorf("%w: amount must be non-zero", entity.ErrInvalidAmount)
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case workflow.StateDraft, workflow.StateUnderReview:
	case workflow.StateApproved, workflow.StateLocked, workflow.StatePaid:
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, entity.ErrRunLocked)
	default:
		return nil, entity.NewInvalidTransition(run.Status, "createPayrollAdjustment", nil)
	}

	adjustment := &entity.Adjustment{
		RunID:      runID,
		EmployeeID: employeeID,
		Type:       adjType,
		Amount:     entity.NormalizeAmount(adjType, value),
		Reason:     reason,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.adjustmentRepo.Create(txCtx, adjustment); err != nil {
			return err
		}
		return s.runRepo.MarkTotalsStale(txCtx, runID)
	})
	if err != nil {
		s.logger.Error("Failed to create adjustment", "run_id", runID, "error", err)
		return nil, err
	}

	s.logger.Info("Adjustment recorded",
		"run_id", runID, "employee_id", employeeID, "type", string(adjType),
		"amount", adjustment.Amount.String(), "actor", actor.ID)
	return adjustment, nil
}

// GetPayrollAdjustments returns the run's adjustment ledger in entry order
func (s *adjustmentServiceImpl) GetPayrollAdjustments(ctx context.Context, runID string) ([]*entity.Adjustment, error) {
	return s.adjustmentRepo.ListByRun(ctx, runID)
}
