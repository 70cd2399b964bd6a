package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
	"github.com/corehr/payroll-engine/pkg/utils"
)

var (
	specialist = entity.Actor{ID: "ps-1", Roles: []entity.Role{entity.RolePayrollSpecialist}}
	manager    = entity.Actor{ID: "mgr-1", Roles: []entity.Role{entity.RolePayrollManager}}
	finance    = entity.Actor{ID: "fin-1", Roles: []entity.Role{entity.RoleFinanceStaff}}
)

type runFixture struct {
	runs        *memRunRepo
	approvals   *memApprovalRepo
	exceptions  *memExceptionRepo
	adjustments *memAdjustmentRepo
	grants      *memGrantRepo
	svc         RunService
}

func newRunFixture(t *testing.T, cfg RunServiceConfig) *runFixture {
	t.Helper()
	f := &runFixture{
		runs:        newMemRunRepo(),
		approvals:   &memApprovalRepo{},
		exceptions:  &memExceptionRepo{},
		adjustments: &memAdjustmentRepo{},
		grants:      newMemGrantRepo(),
	}
	f.svc = NewRunService(f.runs, f.approvals, f.exceptions, f.adjustments,
		f.grants, &nopTxManager{}, NewRunLocks(), cfg, &mockLogger{})
	return f
}

func defaultRunFixture(t *testing.T) *runFixture {
	return newRunFixture(t, RunServiceConfig{RequireFreshTotals: true})
}

func (f *runFixture) seedRun(t *testing.T, runID string, status workflow.State, stale bool) *entity.PayrollRun {
	t.Helper()
	run := &entity.PayrollRun{
		RunID:         runID,
		Entity:        "acme",
		PayrollPeriod: "2025-09",
		Status:        status,
		TotalsStale:   stale,
		Version:       1,
	}
	require.NoError(t, f.runs.Create(context.Background(), run))
	return run
}

func TestStartPayrollInitiation(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartPayrollInitiation(ctx, specialist, "acme", "2025-09", "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateDraft, run.Status)
	assert.True(t, run.TotalsStale)
	assert.Equal(t, int64(1), run.Version)

	_, err = f.svc.StartPayrollInitiation(ctx, specialist, "acme", "2025-09", "PR-1")
	assert.ErrorIs(t, err, entity.ErrDuplicateRun)

	_, err = f.svc.StartPayrollInitiation(ctx, specialist, "acme", "September 2025", "")
	assert.ErrorIs(t, err, entity.ErrInvalidPeriod)

	_, err = f.svc.StartPayrollInitiation(ctx, manager, "acme", "2025-09", "")
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestStartPayrollInitiationGeneratesRunID(t *testing.T) {
	f := defaultRunFixture(t)

	run, err := f.svc.StartPayrollInitiation(context.Background(), specialist, "acme", "2025-09", "")
	require.NoError(t, err)
	assert.Contains(t, run.RunID, "PR-2025-09-")
}

func TestPublishDraftGates(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateDraft, true)
	_, err := f.svc.PublishDraftForApproval(ctx, specialist, "PR-1")
	assert.ErrorIs(t, err, entity.ErrStaleTotals)

	f.seedRun(t, "PR-2", workflow.StateDraft, false)
	require.NoError(t, f.exceptions.ReplaceOpen(ctx, "PR-2", []port.ExceptionInput{
		{EmployeeID: "emp-1", Type: entity.ExceptionCalculationError},
	}))
	_, err = f.svc.PublishDraftForApproval(ctx, specialist, "PR-2")
	assert.ErrorIs(t, err, entity.ErrCriticalExceptionsOpen)

	// High-severity exceptions do not block, only critical ones.
	_, err = f.exceptions.ResolveOpenByEmployee(ctx, "PR-2", "emp-1", "corrected", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.exceptions.ReplaceOpen(ctx, "PR-2", []port.ExceptionInput{
		{EmployeeID: "emp-2", Type: entity.ExceptionMissingBankDetails},
	}))
	run, err := f.svc.PublishDraftForApproval(ctx, specialist, "PR-2")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateUnderReview, run.Status)
}

func TestPublishResolvedCriticalAllowsSameCall(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateDraft, false)
	require.NoError(t, f.exceptions.ReplaceOpen(ctx, "PR-1", []port.ExceptionInput{
		{EmployeeID: "emp-1", Type: entity.ExceptionCalculationError},
	}))

	_, err := f.svc.PublishDraftForApproval(ctx, specialist, "PR-1")
	require.ErrorIs(t, err, entity.ErrCriticalExceptionsOpen)

	_, err = f.exceptions.ResolveOpenByEmployee(ctx, "PR-1", "emp-1", "fixed", time.Now())
	require.NoError(t, err)

	run, err := f.svc.PublishDraftForApproval(ctx, specialist, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateUnderReview, run.Status)

	run, err = f.svc.PublishDraftForApproval(ctx, specialist, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingManagerApproval, run.Status)
}

func TestFullApprovalLifecycle(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateDraft, false)

	_, err := f.svc.PublishDraftForApproval(ctx, specialist, "PR-1")
	require.NoError(t, err)
	run, err := f.svc.PublishDraftForApproval(ctx, specialist, "PR-1")
	require.NoError(t, err)
	require.Equal(t, workflow.StatePendingManagerApproval, run.Status)

	run, err = f.svc.ApproveByPayrollManager(ctx, manager, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingFinanceApproval, run.Status)

	run, err = f.svc.ApproveByFinanceStaff(ctx, finance, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, run.Status)

	approvals, err := f.svc.GetApprovalsByRunID(ctx, "PR-1")
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, entity.StageManager, approvals[0].Stage)
	assert.Equal(t, entity.StageFinance, approvals[1].Stage)
	for _, a := range approvals {
		assert.Equal(t, entity.DecisionApprove, a.Decision)
	}
}

func TestManagerHasNoAuthorityOnDraft(t *testing.T) {
	f := defaultRunFixture(t)

	f.seedRun(t, "PR-1", workflow.StateDraft, false)
	_, err := f.svc.ApproveByPayrollManager(context.Background(), manager, "PR-1")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestRejectRequiresReason(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StatePendingManagerApproval, false)

	_, err := f.svc.RejectByPayrollManager(ctx, manager, "PR-1", "  ")
	assert.ErrorIs(t, err, entity.ErrReasonRequired)

	run, err := f.svc.RejectByPayrollManager(ctx, manager, "PR-1", "totals look wrong")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, run.Status)
	assert.Equal(t, "totals look wrong", run.RejectReason)

	approvals, err := f.svc.GetApprovalsByRunID(ctx, "PR-1")
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, entity.DecisionReject, approvals[0].Decision)
	assert.Equal(t, "totals look wrong", approvals[0].Reason)
}

func TestConcurrentManagerApprovals(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StatePendingManagerApproval, false)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ApproveByPayrollManager(ctx, manager, "PR-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, entity.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded)

	count, err := f.approvals.CountByRunAndStage(ctx, "PR-1", entity.StageManager)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManagerStageAlreadyDecided(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	// A manager entry already in the ledger while the run sits in the manager
	// queue must refuse a second decision.
	f.seedRun(t, "PR-1", workflow.StatePendingManagerApproval, false)
	require.NoError(t, f.approvals.Create(ctx, &entity.Approval{
		ID: "a-1", RunID: "PR-1", Stage: entity.StageManager,
		Decision: entity.DecisionApprove, ApproverID: "mgr-0",
	}))

	_, err := f.svc.ApproveByPayrollManager(ctx, manager, "PR-1")
	assert.ErrorIs(t, err, entity.ErrStageAlreadyDecided)
}

func TestFreezeUnfreezeCycle(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateApproved, false)

	run, err := f.svc.FreezePayroll(ctx, finance, "PR-1", "year-end close")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateLocked, run.Status)

	run, err = f.svc.UnfreezePayroll(ctx, manager, "PR-1", "close finished")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, run.Status)

	// Freeze cycles may repeat; the ledger keeps every hold.
	_, err = f.svc.FreezePayroll(ctx, manager, "PR-1", "audit hold")
	require.NoError(t, err)

	approvals, err := f.svc.GetApprovalsByRunID(ctx, "PR-1")
	require.NoError(t, err)
	require.Len(t, approvals, 3)
	assert.Equal(t, entity.StageFreeze, approvals[0].Stage)
	assert.Equal(t, entity.StageUnfreeze, approvals[1].Stage)
	assert.Equal(t, entity.StageFreeze, approvals[2].Stage)
}

func TestFreezeRequiresManagerOrFinance(t *testing.T) {
	f := defaultRunFixture(t)

	f.seedRun(t, "PR-1", workflow.StateApproved, false)
	_, err := f.svc.FreezePayroll(context.Background(), specialist, "PR-1", "hold")
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestMarkPayrollAsPaid(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateApproved, false)
	run, err := f.svc.MarkPayrollAsPaid(ctx, finance, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePaid, run.Status)

	// Settlement is recorded without a ledger entry.
	approvals, err := f.svc.GetApprovalsByRunID(ctx, "PR-1")
	require.NoError(t, err)
	assert.Empty(t, approvals)

	f.seedRun(t, "PR-2", workflow.StateLocked, false)
	run, err = f.svc.MarkPayrollAsPaid(ctx, finance, "PR-2")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePaid, run.Status)

	f.seedRun(t, "PR-3", workflow.StateDraft, false)
	_, err = f.svc.MarkPayrollAsPaid(ctx, finance, "PR-3")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	_, err = f.svc.MarkPayrollAsPaid(ctx, finance, "PR-1")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestEditPayrollPeriod(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateDraft, false)
	run, err := f.svc.EditPayrollPeriod(ctx, specialist, "PR-1", "2025-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-10", run.PayrollPeriod)

	f.seedRun(t, "PR-2", workflow.StateLocked, false)
	_, err = f.svc.EditPayrollPeriod(ctx, specialist, "PR-2", "2025-10")
	assert.ErrorIs(t, err, entity.ErrRunLocked)

	f.seedRun(t, "PR-3", workflow.StatePendingManagerApproval, false)
	_, err = f.svc.EditPayrollPeriod(ctx, specialist, "PR-3", "2025-10")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestDeletePayrollRun(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StateDraft, false)
	require.NoError(t, f.svc.DeletePayrollRun(ctx, specialist, "PR-1"))
	_, err := f.svc.GetPayrollRunByID(ctx, "PR-1")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	f.seedRun(t, "PR-2", workflow.StateRejected, false)
	require.NoError(t, f.svc.DeletePayrollRun(ctx, specialist, "PR-2"))

	f.seedRun(t, "PR-3", workflow.StateApproved, false)
	err = f.svc.DeletePayrollRun(ctx, specialist, "PR-3")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestReviewBundles(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	f.seedRun(t, "PR-1", workflow.StatePendingManagerApproval, false)

	review, err := f.svc.GetPayrollForManagerReview(ctx, manager, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, "PR-1", review.Run.RunID)
	assert.Contains(t, review.PermittedTriggers, workflow.TriggerManagerApprove)

	_, err = f.svc.GetPayrollForFinanceReview(ctx, finance, "PR-1")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	_, err = f.svc.GetPayrollForManagerReview(ctx, finance, "PR-1")
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestCheckPreRunApprovalsComplete(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	complete, pending, err := f.svc.CheckPreRunApprovalsComplete(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Zero(t, pending)

	require.NoError(t, f.grants.Create(ctx, &entity.Grant{
		Kind: entity.GrantSigningBonus, EmployeeID: "emp-1",
		Entity: "acme", Status: entity.GrantPending,
	}))

	complete, pending, err = f.svc.CheckPreRunApprovalsComplete(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, pending)
}

func TestGetSuggestedPayrollPeriod(t *testing.T) {
	f := defaultRunFixture(t)
	ctx := context.Background()

	period, err := f.svc.GetSuggestedPayrollPeriod(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format(utils.PeriodLayout), period)

	f.seedRun(t, "PR-1", workflow.StatePaid, false)
	period, err = f.svc.GetSuggestedPayrollPeriod(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "2025-10", period)
}

func TestValidatePayrollPeriodWindow(t *testing.T) {
	f := newRunFixture(t, RunServiceConfig{PeriodWindowMonths: 2})

	assert.NoError(t, f.svc.ValidatePayrollPeriod(time.Now().UTC().Format(utils.PeriodLayout)))

	farFuture := time.Now().UTC().AddDate(0, 6, 0).Format(utils.PeriodLayout)
	assert.ErrorIs(t, f.svc.ValidatePayrollPeriod(farFuture), entity.ErrInvalidPeriod)
	assert.ErrorIs(t, f.svc.ValidatePayrollPeriod("2025/09"), entity.ErrInvalidPeriod)
}
