package service

import (
	"context"
	"fmt"
	"time"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

// ExceptionService runs calculation passes and tracks per-employee exceptions
type ExceptionService interface {
	FlagPayrollExceptions(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, []*entity.Exception, error)
	ResolveException(ctx context.Context, actor entity.Actor, runID, employeeID, note string) (*entity.PayrollRun, error)
	GetPayrollRunExceptions(ctx context.Context, runID string) ([]*entity.Exception, error)
}

type exceptionServiceImpl struct {
	runRepo        port.RunRepository
	exceptionRepo  port.ExceptionRepository
	adjustmentRepo port.AdjustmentRepository
	calculator     port.Calculator
	txManager      port.TransactionManager
	locks          *RunLocks
	logger         Logger
}

// NewExceptionService creates a new ExceptionService
func NewExceptionService(
	runRepo port.RunRepository,
	exceptionRepo port.ExceptionRepository,
	adjustmentRepo port.AdjustmentRepository,
	calculator port.Calculator,
	txManager port.TransactionManager,
	locks *RunLocks,
	logger Logger,
) ExceptionService {
	return &exceptionServiceImpl{
		runRepo:        runRepo,
		exceptionRepo:  exceptionRepo,
		adjustmentRepo: adjustmentRepo,
		calculator:     calculator,
		txManager:      txManager,
		locks:          locks,
		logger:         logger,
	}
}

// FlagPayrollExceptions runs one calculation pass over the run, replaces the
// open exception set with the freshly derived one, and refreshes the cached
// totals. Re-invoking with unchanged inputs yields the same figures and the
// same exception set.
func (s *exceptionServiceImpl) FlagPayrollExceptions(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, []*entity.Exception, error) {
	if err := requireRole(actor, "flagPayrollExceptions", entity.RolePayrollSpecialist); err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	switch run.Status {
	case workflow.StateDraft, workflow.StateUnderReview:
	case workflow.StateApproved, workflow.StateLocked, workflow.StatePaid:
		return nil, nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, entity.ErrRunLocked)
	default:
		return nil, nil, entity.NewInvalidTransition(run.Status, "flagPayrollExceptions", nil)
	}

	adjustments, err := s.adjustmentRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.calculator.Calculate(ctx, run, adjustments)
	if err != nil {
		s.logger.Error("Calculation pass failed", "run_id", runID, "error", err)
		return nil, nil, err
	}

	totals := port.RunTotals{
		Employees:       result.Employees,
		TotalNetPay:     result.TotalNetPay,
		ExceptionsCount: len(result.Exceptions),
	}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.exceptionRepo.ReplaceOpen(txCtx, runID, result.Exceptions); err != nil {
			return err
		}
		return s.runRepo.UpdateTotals(txCtx, runID, totals, false, run.Version)
	})
	if err != nil {
		return nil, nil, err
	}

	run.Employees = totals.Employees
	run.TotalNetPay = totals.TotalNetPay
	run.ExceptionsCount = totals.ExceptionsCount
	run.TotalsStale = false
	run.Version++

	exceptions, err := s.exceptionRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Exceptions flagged",
		"run_id", runID, "employees", totals.Employees,
		"total_net_pay", totals.TotalNetPay.String(),
		"exceptions", totals.ExceptionsCount, "actor", actor.ID)
	return run, exceptions, nil
}

// ResolveException marks the employee's open exceptions on the run resolved.
// The run's cached exception count keeps the figure of the last calculation
// pass; the open set is what gates publishing.
func (s *exceptionServiceImpl) ResolveException(ctx context.Context, actor entity.Actor, runID, employeeID, note string) (*entity.PayrollRun, error) {
	if err := requireRole(actor, "resolveException", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, entity.NewInvalidTransition(run.Status, "resolveException", nil)
	}

	resolved, err := s.exceptionRepo.ResolveOpenByEmployee(ctx, runID, employeeID, note, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if resolved == 0 {
		return nil, fmt.Errorf("run %s employee %s: %w", runID, employeeID, entity.ErrExceptionNotFound)
	}

	s.logger.Info("Exceptions resolved",
		"run_id", runID, "employee_id", employeeID, "count", resolved, "actor", actor.ID)
	return run, nil
}

// GetPayrollRunExceptions returns all exception records for a run, open and
// resolved alike
func (s *exceptionServiceImpl) GetPayrollRunExceptions(ctx context.Context, runID string) ([]*entity.Exception, error) {
	return s.exceptionRepo.ListByRun(ctx, runID)
}
