package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
	"github.com/corehr/payroll-engine/pkg/utils"
)

// RunReview is the read model returned to a reviewer: the run snapshot plus
// everything needed to decide on it.
type RunReview struct {
	Run               *entity.PayrollRun
	Exceptions        []*entity.Exception
	Adjustments       []*entity.Adjustment
	Approvals         []*entity.Approval
	PermittedTriggers []workflow.Trigger
}

// RunServiceConfig carries the policy knobs of the run lifecycle.
type RunServiceConfig struct {
	// RequireFreshTotals refuses publishing while adjustment writes have not
	// been followed by a recalculation.
	RequireFreshTotals bool
	// PeriodWindowMonths bounds how far from the current month a payroll
	// period may lie. Zero disables the window.
	PeriodWindowMonths int
}

// RunService drives the payroll run lifecycle
type RunService interface {
	StartPayrollInitiation(ctx context.Context, actor entity.Actor, entityName, period, runID string) (*entity.PayrollRun, error)
	EditPayrollPeriod(ctx context.Context, actor entity.Actor, runID, period string) (*entity.PayrollRun, error)
	PublishDraftForApproval(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error)
	ApproveByPayrollManager(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error)
	RejectByPayrollManager(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error)
	ApproveByFinanceStaff(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error)
	RejectByFinanceStaff(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error)
	FreezePayroll(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error)
	UnfreezePayroll(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error)
	MarkPayrollAsPaid(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error)
	DeletePayrollRun(ctx context.Context, actor entity.Actor, runID string) error

	GetPayrollRunByID(ctx context.Context, runID string) (*entity.PayrollRun, error)
	GetApprovalsByRunID(ctx context.Context, runID string) ([]*entity.Approval, error)
	ReviewPayrollDraft(ctx context.Context, actor entity.Actor, runID string) (*RunReview, error)
	GetPayrollForManagerReview(ctx context.Context, actor entity.Actor, runID string) (*RunReview, error)
	GetPayrollForFinanceReview(ctx context.Context, actor entity.Actor, runID string) (*RunReview, error)
	CheckPreRunApprovalsComplete(ctx context.Context, entityName string) (bool, int, error)
	GetSuggestedPayrollPeriod(ctx context.Context, entityName string) (string, error)
	ValidatePayrollPeriod(period string) error
}

type runServiceImpl struct {
	runRepo        port.RunRepository
	approvalRepo   port.ApprovalRepository
	exceptionRepo  port.ExceptionRepository
	adjustmentRepo port.AdjustmentRepository
	grantRepo      port.GrantRepository
	txManager      port.TransactionManager
	locks          *RunLocks
	cfg            RunServiceConfig
	logger         Logger
}

// NewRunService creates a new RunService
func NewRunService(
	runRepo port.RunRepository,
	approvalRepo port.ApprovalRepository,
	exceptionRepo port.ExceptionRepository,
	adjustmentRepo port.AdjustmentRepository,
	grantRepo port.GrantRepository,
	txManager port.TransactionManager,
	locks *RunLocks,
	cfg RunServiceConfig,
	logger Logger,
) RunService {
	return &runServiceImpl{
		runRepo:        runRepo,
		approvalRepo:   approvalRepo,
		exceptionRepo:  exceptionRepo,
		adjustmentRepo: adjustmentRepo,
		grantRepo:      grantRepo,
		txManager:      txManager,
		locks:          locks,
		cfg:            cfg,
		logger:         logger,
	}
}

// requireRole checks role membership before any state is touched
func requireRole(actor entity.Actor, operation string, roles ...entity.Role) error {
	if !actor.HasAnyRole(roles...) {
		return fmt.Errorf("%w: operation %s requires one of %v, caller %s has %v",
			entity.ErrForbidden, operation, roles, actor.ID, actor.Roles)
	}
	return nil
}

// StartPayrollInitiation creates a new draft run for an entity/period. An
// empty runID gets a generated key. The draft starts with stale totals: a
// calculation pass is required before it can be published.
func (s *runServiceImpl) StartPayrollInitiation(ctx context.Context, actor entity.Actor, entityName, period, runID string) (*entity.PayrollRun, error) {
	if err := requireRole(actor, "startPayrollInitiation", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}
	if err := s.ValidatePayrollPeriod(period); err != nil {
		return nil, err
	}
	if entityName == "" {
		return nil, fmt.Errorf("%w: entity is required", entity.ErrInvalidPeriod)
	}
	if runID == "" {
		runID = newRunID(period)
	}

	run := &entity.PayrollRun{
		RunID:         runID,
		Entity:        entityName,
		PayrollPeriod: period,
		Status:        workflow.StateDraft,
		TotalsStale:   true,
		Version:       1,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("Payroll run initiated",
		"run_id", runID, "entity", entityName, "period", period, "actor", actor.ID)
	return run, nil
}

// EditPayrollPeriod changes the period of a draft run
func (s *runServiceImpl) EditPayrollPeriod(ctx context.Context, actor entity.Actor, runID, period string) (*entity.PayrollRun, error) {
	if err := requireRole(actor, "editPayrollPeriod", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}
	if err := s.ValidatePayrollPeriod(period); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case workflow.StateDraft:
	case workflow.StateLocked, workflow.StatePaid:
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, entity.ErrRunLocked)
	default:
		return nil, entity.NewInvalidTransition(run.Status, "editPayrollPeriod", nil)
	}

	if err := s.runRepo.UpdatePeriod(ctx, runID, period, run.Version); err != nil {
		return nil, err
	}

	run.PayrollPeriod = period
	run.Version++
	s.logger.Info("Payroll period updated", "run_id", runID, "period", period, "actor", actor.ID)
	return run, nil
}

// PublishDraftForApproval advances the run one hop toward the approval
// queues: draft to under_review, then under_review to the manager queue.
// Both hops refuse while critical exceptions are open or totals are stale.
func (s *runServiceImpl) PublishDraftForApproval(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error) {
	if err := requireRole(actor, "publishDraftForApproval", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	var trigger workflow.Trigger
	switch run.Status {
	case workflow.StateDraft:
		trigger = workflow.TriggerSubmitForReview
	case workflow.StateUnderReview:
		trigger = workflow.TriggerRequestApproval
	default:
		machine := workflow.BuildLifecycleMachine(run.Status, nil)
		return nil, entity.NewInvalidTransition(run.Status, "publishDraftForApproval", machine.PermittedStates())
	}

	guard := workflow.PublishGuard(func(gctx context.Context) error {
		if s.cfg.RequireFreshTotals && run.TotalsStale {
			return fmt.Errorf("run %s: %w", runID, entity.ErrStaleTotals)
		}
		open, err := s.exceptionRepo.CountOpenBySeverity(gctx, runID, entity.SeverityCritical)
		if err != nil {
			return fmt.Errorf("counting open critical exceptions: %w", err)
		}
		if open > 0 {
			return fmt.Errorf("run %s has %d open critical exceptions: %w",
				runID, open, entity.ErrCriticalExceptionsOpen)
		}
		return nil
	})

	machine := workflow.BuildLifecycleMachine(run.Status, guard)
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, err
	}

	newState := machine.State()
	if err := s.runRepo.UpdateStatus(ctx, runID, port.RunStatusUpdate{
		Status:          newState,
		ExpectedVersion: run.Version,
	}); err != nil {
		return nil, err
	}

	run.Status = newState
	run.Version++
	s.logger.Info("Payroll run published", "run_id", runID, "status", newState.String(), "actor", actor.ID)
	return run, nil
}

// ApproveByPayrollManager records the manager-stage approval
func (s *runServiceImpl) ApproveByPayrollManager(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error) {
	return s.decide(ctx, actor, runID, "approveByPayrollManager",
		[]entity.Role{entity.RolePayrollManager},
		workflow.TriggerManagerApprove, entity.StageManager, entity.DecisionApprove, "")
}

// RejectByPayrollManager records the manager-stage rejection. Reason is mandatory.
func (s *runServiceImpl) RejectByPayrollManager(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error) {
	return s.decide(ctx, actor, runID, "rejectByPayrollManager",
		[]entity.Role{entity.RolePayrollManager},
		workflow.TriggerManagerReject, entity.StageManager, entity.DecisionReject, reason)
}

// ApproveByFinanceStaff records the finance-stage approval
func (s *runServiceImpl) ApproveByFinanceStaff(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error) {
	return s.decide(ctx, actor, runID, "approveByFinanceStaff",
		[]entity.Role{entity.RoleFinanceStaff},
		workflow.TriggerFinanceApprove, entity.StageFinance, entity.DecisionApprove, "")
}

// RejectByFinanceStaff records the finance-stage rejection. Reason is mandatory.
func (s *runServiceImpl) RejectByFinanceStaff(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error) {
	return s.decide(ctx, actor, runID, "rejectByFinanceStaff",
		[]entity.Role{entity.RoleFinanceStaff},
		workflow.TriggerFinanceReject, entity.StageFinance, entity.DecisionReject, reason)
}

// FreezePayroll places a reversible hold on an approved run
func (s *runServiceImpl) FreezePayroll(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error) {
	return s.decide(ctx, actor, runID, "freezePayroll",
		[]entity.Role{entity.RolePayrollManager, entity.RoleFinanceStaff},
		workflow.TriggerFreeze, entity.StageFreeze, entity.DecisionApprove, reason)
}

// UnfreezePayroll lifts the hold and restores approved. A reason is recorded
// when supplied but not required.
func (s *runServiceImpl) UnfreezePayroll(ctx context.Context, actor entity.Actor, runID, reason string) (*entity.PayrollRun, error) {
	return s.decide(ctx, actor, runID, "unfreezePayroll",
		[]entity.Role{entity.RolePayrollManager, entity.RoleFinanceStaff},
		workflow.TriggerUnfreeze, entity.StageUnfreeze, entity.DecisionApprove, reason)
}

// decide executes one ledgered transition: validate role and state, then
// commit the status change and the ledger entry in one transaction. The
// partial unique index on single-decision stages makes the duplicate check
// hold even across processes.
func (s *runServiceImpl) decide(
	ctx context.Context,
	actor entity.Actor,
	runID, operation string,
	roles []entity.Role,
	trigger workflow.Trigger,
	stage entity.Stage,
	decision entity.Decision,
	reason string,
) (*entity.PayrollRun, error) {
	if err := requireRole(actor, operation, roles...); err != nil {
		return nil, err
	}
	if decision == entity.DecisionReject && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: operation %s", entity.ErrReasonRequired, operation)
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	machine := workflow.BuildLifecycleMachine(run.Status, nil)
	if !machine.CanFire(trigger) {
		return nil, entity.NewInvalidTransition(run.Status, operation, machine.PermittedStates())
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, err
	}
	newState := machine.State()

	approval := &entity.Approval{
		ID:         uuid.NewString(),
		RunID:      runID,
		Stage:      stage,
		Decision:   decision,
		ApproverID: actor.ID,
		Reason:     reason,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if stage.IsSingleDecision() {
			n, err := s.approvalRepo.CountByRunAndStage(txCtx, runID, stage)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("run %s stage %s: %w", runID, stage, entity.ErrStageAlreadyDecided)
			}
		}

		update := port.RunStatusUpdate{Status: newState, ExpectedVersion: run.Version}
		if decision == entity.DecisionReject {
			update.RejectReason = &reason
		}
		if err := s.runRepo.UpdateStatus(txCtx, runID, update); err != nil {
			return err
		}
		return s.approvalRepo.Create(txCtx, approval)
	})
	if err != nil {
		s.logger.Error("Transition failed", "run_id", runID, "operation", operation, "error", err)
		return nil, err
	}

	run.Status = newState
	run.Version++
	if decision == entity.DecisionReject {
		run.RejectReason = reason
	}

	s.logger.Info("Transition recorded",
		"run_id", runID, "operation", operation, "stage", string(stage),
		"decision", string(decision), "status", newState.String(), "actor", actor.ID)
	return run, nil
}

// MarkPayrollAsPaid settles the run. Settlement is an external fact being
// recorded, not an approval, so no ledger entry is written.
func (s *runServiceImpl) MarkPayrollAsPaid(ctx context.Context, actor entity.Actor, runID string) (*entity.PayrollRun, error) {
	if err := requireRole(actor, "markPayrollAsPaid", entity.RoleFinanceStaff); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	machine := workflow.BuildLifecycleMachine(run.Status, nil)
	if !machine.CanFire(workflow.TriggerMarkPaid) {
		return nil, entity.NewInvalidTransition(run.Status, "markPayrollAsPaid", machine.PermittedStates())
	}
	if err := machine.Fire(ctx, workflow.TriggerMarkPaid); err != nil {
		return nil, err
	}

	if err := s.runRepo.UpdateStatus(ctx, runID, port.RunStatusUpdate{
		Status:          workflow.StatePaid,
		ExpectedVersion: run.Version,
	}); err != nil {
		return nil, err
	}

	run.Status = workflow.StatePaid
	run.Version++
	s.logger.Info("Payroll run settled", "run_id", runID, "actor", actor.ID)
	return run, nil
}

// DeletePayrollRun hard-deletes a draft or rejected run
func (s *runServiceImpl) DeletePayrollRun(ctx context.Context, actor entity.Actor, runID string) error {
	if err := requireRole(actor, "deletePayrollRun", entity.RolePayrollSpecialist); err != nil {
		return err
	}

	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.IsDeletable() {
		return entity.NewInvalidTransition(run.Status, "deletePayrollRun", nil)
	}

	if err := s.runRepo.Delete(ctx, runID); err != nil {
		return err
	}
	s.logger.Info("Payroll run deleted", "run_id", runID, "actor", actor.ID)
	return nil
}

// GetPayrollRunByID returns the current run snapshot
func (s *runServiceImpl) GetPayrollRunByID(ctx context.Context, runID string) (*entity.PayrollRun, error) {
	return s.runRepo.GetByRunID(ctx, runID)
}

// GetApprovalsByRunID returns the run's approval ledger in decision order
func (s *runServiceImpl) GetApprovalsByRunID(ctx context.Context, runID string) ([]*entity.Approval, error) {
	return s.approvalRepo.ListByRun(ctx, runID)
}

// ReviewPayrollDraft assembles the specialist's pre-publish view of a run
func (s *runServiceImpl) ReviewPayrollDraft(ctx context.Context, actor entity.Actor, runID string) (*RunReview, error) {
	if err := requireRole(actor, "reviewPayrollDraft", entity.RolePayrollSpecialist); err != nil {
		return nil, err
	}
	return s.buildReview(ctx, runID)
}

// GetPayrollForManagerReview returns the review bundle for a run awaiting
// manager decision
func (s *runServiceImpl) GetPayrollForManagerReview(ctx context.Context, actor entity.Actor, runID string) (*RunReview, error) {
	if err := requireRole(actor, "getPayrollForManagerReview", entity.RolePayrollManager); err != nil {
		return nil, err
	}
	review, err := s.buildReview(ctx, runID)
	if err != nil {
		return nil, err
	}
	if review.Run.Status != workflow.StatePendingManagerApproval {
		return nil, entity.NewInvalidTransition(review.Run.Status, "getPayrollForManagerReview", nil)
	}
	return review, nil
}

// GetPayrollForFinanceReview returns the review bundle for a run awaiting
// finance decision
func (s *runServiceImpl) GetPayrollForFinanceReview(ctx context.Context, actor entity.Actor, runID string) (*RunReview, error) {
	if err := requireRole(actor, "getPayrollForFinanceReview", entity.RoleFinanceStaff); err != nil {
		return nil, err
	}
	review, err := s.buildReview(ctx, runID)
	if err != nil {
		return nil, err
	}
	if review.Run.Status != workflow.StatePendingFinanceApproval {
		return nil, entity.NewInvalidTransition(review.Run.Status, "getPayrollForFinanceReview", nil)
	}
	return review, nil
}

func (s *runServiceImpl) buildReview(ctx context.Context, runID string) (*RunReview, error) {
	run, err := s.runRepo.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.exceptionRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.adjustmentRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	approvals, err := s.approvalRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	machine := workflow.BuildLifecycleMachine(run.Status, nil)
	return &RunReview{
		Run:               run,
		Exceptions:        exceptions,
		Adjustments:       adjustments,
		Approvals:         approvals,
		PermittedTriggers: machine.PermittedTriggers(),
	}, nil
}

// CheckPreRunApprovalsComplete reports whether the entity still has pending
// signing-bonus or benefit grants, and how many.
func (s *runServiceImpl) CheckPreRunApprovalsComplete(ctx context.Context, entityName string) (bool, int, error) {
	pending, err := s.grantRepo.CountPendingByEntity(ctx, entityName)
	if err != nil {
		return false, 0, err
	}
	return pending == 0, pending, nil
}

// GetSuggestedPayrollPeriod returns the month after the entity's latest run,
// or the current month when the entity has no runs yet.
func (s *runServiceImpl) GetSuggestedPayrollPeriod(ctx context.Context, entityName string) (string, error) {
	latest, err := s.runRepo.GetLatestByEntity(ctx, entityName)
	if errors.Is(err, entity.ErrNotFound) {
		return time.Now().UTC().Format(utils.PeriodLayout), nil
	}
	if err != nil {
		return "", err
	}
	return utils.NextPeriod(latest.PayrollPeriod)
}

// ValidatePayrollPeriod checks the YYYY-MM format and the configured window
func (s *runServiceImpl) ValidatePayrollPeriod(period string) error {
	if err := utils.ValidatePeriod(period, time.Now().UTC(), s.cfg.PeriodWindowMonths); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrInvalidPeriod, err)
	}
	return nil
}

// newRunID builds a run key like PR-2025-09-4F1A2B3C
func newRunID(period string) string {
	return fmt.Sprintf("PR-%s-%s", period, strings.ToUpper(uuid.NewString()[:8]))
}
