package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

// PayslipService submits payslip generation work and drives distribution.
// Rendering itself happens in the background worker; callers poll the batch
// status until it reaches generated.
type PayslipService interface {
	GeneratePayslips(ctx context.Context, actor entity.Actor, runID string) (*entity.PayslipBatch, error)
	DistributePayslips(ctx context.Context, actor entity.Actor, runID string) (*entity.PayslipBatch, error)
	GetPayslipBatch(ctx context.Context, runID string) (*entity.PayslipBatch, error)
}

type payslipServiceImpl struct {
	runRepo      port.RunRepository
	payslipRepo  port.PayslipRepository
	employeeRepo port.EmployeeRepository
	notifier     port.PayslipNotifier
	locks        *RunLocks
	logger       Logger
}

// NewPayslipService creates a new PayslipService
func NewPayslipService(
	runRepo port.RunRepository,
	payslipRepo port.PayslipRepository,
	employeeRepo port.EmployeeRepository,
	notifier port.PayslipNotifier,
	locks *RunLocks,
	logger Logger,
) PayslipService {
	return &payslipServiceImpl{
		runRepo:      runRepo,
		payslipRepo:  payslipRepo,
		employeeRepo: employeeRepo,
		notifier:     notifier,
		locks:        locks,
		logger:       logger,
	}
}

// batchFingerprint keys a generation attempt on the figures it would render.
// Re-invoking generation for an unchanged run hits the same fingerprint and
// returns the existing batch.
func batchFingerprint(run *entity.PayrollRun) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d",
		run.RunID, run.PayrollPeriod, run.TotalNetPay.String(), run.Employees)))
	return hex.EncodeToString(sum[:])
}

// GeneratePayslips submits one generation batch for an approved or locked
// run. The call returns immediately with the batch; the background worker
// renders it.
func (s *payslipServiceImpl) GeneratePayslips(ctx context.Context, actor entity.Actor, runID string) (*entity.PayslipBatch, error) {
	if err := requireRole(actor, "generatePayslips", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case workflow.StateApproved, workflow.StateLocked:
	default:
		return nil, entity.NewInvalidTransition(run.Status, "generatePayslips", nil)
	}

	fingerprint := batchFingerprint(run)
	existing, err := s.payslipRepo.GetByFingerprint(ctx, runID, fingerprint)
	if err == nil {
		s.logger.Info("Payslip batch already submitted",
			"run_id", runID, "batch_id", existing.ID, "status", string(existing.Status))
		return existing, nil
	}

	batch := &entity.PayslipBatch{
		ID:            uuid.NewString(),
		RunID:         runID,
		Fingerprint:   fingerprint,
		Status:        entity.PayslipPending,
		EmployeeCount: run.Employees,
	}
	if err := s.payslipRepo.Create(ctx, batch); err != nil {
		return nil, err
	}

	s.logger.Info("Payslip batch submitted",
		"run_id", runID, "batch_id", batch.ID, "actor", actor.ID)
	return batch, nil
}

// DistributePayslips notifies every employee of the run's entity that their
// payslip is ready, then marks the batch distributed. A batch that is already
// distributed is returned as-is without re-sending.
func (s *payslipServiceImpl) DistributePayslips(ctx context.Context, actor entity.Actor, runID string) (*entity.PayslipBatch, error) {
	if err := requireRole(actor, "distributePayslips", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	batch, err := s.payslipRepo.GetLatestByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, entity.ErrPayslipsNotGenerated)
	}

	switch batch.Status {
	case entity.PayslipDistributed:
		s.logger.Info("Payslip batch already distributed", "run_id", runID, "batch_id", batch.ID)
		return batch, nil
	case entity.PayslipGenerated:
	default:
		return nil, fmt.Errorf("run %s batch %s is %s: %w",
			runID, batch.ID, batch.Status, entity.ErrPayslipsNotGenerated)
	}

	employees, err := s.employeeRepo.ListByEntity(ctx, run.Entity)
	if err != nil {
		return nil, err
	}
	for _, emp := range employees {
		if err := s.notifier.NotifyPayslipReady(ctx, emp.ID, runID, run.PayrollPeriod); err != nil {
			return nil, fmt.Errorf("notifying employee %s: %w", emp.ID, err)
		}
	}

	now := time.Now().UTC()
	if err := s.payslipRepo.MarkDistributed(ctx, batch.ID, now); err != nil {
		return nil, err
	}

	batch.Status = entity.PayslipDistributed
	batch.DistributedAt = &now
	s.logger.Info("Payslip batch distributed",
		"run_id", runID, "batch_id", batch.ID, "employees", len(employees), "actor", actor.ID)
	return batch, nil
}

// GetPayslipBatch returns the run's most recent generation batch
func (s *payslipServiceImpl) GetPayslipBatch(ctx context.Context, runID string) (*entity.PayslipBatch, error) {
	return s.payslipRepo.GetLatestByRun(ctx, runID)
}
