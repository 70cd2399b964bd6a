package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

func statusUpdate(status workflow.State, version int64) port.RunStatusUpdate {
	return port.RunStatusUpdate{Status: status, ExpectedVersion: version}
}

func totalsOf(employees int, net string) port.RunTotals {
	return port.RunTotals{Employees: employees, TotalNetPay: decimal.RequireFromString(net)}
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// nopTxManager runs the function directly; the fakes below keep the same
// conditional-write semantics the sqlite repositories have.
type nopTxManager struct{}

func (m *nopTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memRunRepo is an in-memory run store with the same version CAS behavior as
// the sqlite repository.
type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*entity.PayrollRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*entity.PayrollRun)}
}

func (r *memRunRepo) Create(ctx context.Context, run *entity.PayrollRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.RunID]; ok {
		return fmt.Errorf("run %s: %w", run.RunID, entity.ErrDuplicateRun)
	}
	run.ID = int64(len(r.runs) + 1)
	stored := *run
	r.runs[run.RunID] = &stored
	return nil
}

func (r *memRunRepo) GetByRunID(ctx context.Context, runID string) (*entity.PayrollRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

func (r *memRunRepo) ListByStatus(ctx context.Context, status workflow.State) ([]*entity.PayrollRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.PayrollRun
	for _, run := range r.runs {
		if run.Status == status {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memRunRepo) GetLatestByEntity(ctx context.Context, entityName string) (*entity.PayrollRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *entity.PayrollRun
	for _, run := range r.runs {
		if run.Entity != entityName {
			continue
		}
		if latest == nil || run.PayrollPeriod > latest.PayrollPeriod {
			latest = run
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("entity %s: %w", entityName, entity.ErrNotFound)
	}
	copied := *latest
	return &copied, nil
}

func (r *memRunRepo) casWrite(runID string, expectedVersion int64, mutate func(*entity.PayrollRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	if run.Version != expectedVersion {
		return fmt.Errorf("run %s: %w", runID, entity.ErrConcurrentUpdate)
	}
	mutate(run)
	run.Version++
	return nil
}

func (r *memRunRepo) UpdateStatus(ctx context.Context, runID string, update port.RunStatusUpdate) error {
	return r.casWrite(runID, update.ExpectedVersion, func(run *entity.PayrollRun) {
		run.Status = update.Status
		if update.RejectReason != nil {
			run.RejectReason = *update.RejectReason
		}
	})
}

func (r *memRunRepo) UpdatePeriod(ctx context.Context, runID, period string, expectedVersion int64) error {
	return r.casWrite(runID, expectedVersion, func(run *entity.PayrollRun) {
		run.PayrollPeriod = period
	})
}

func (r *memRunRepo) UpdateTotals(ctx context.Context, runID string, totals port.RunTotals, stale bool, expectedVersion int64) error {
	return r.casWrite(runID, expectedVersion, func(run *entity.PayrollRun) {
		run.Employees = totals.Employees
		run.TotalNetPay = totals.TotalNetPay
		run.ExceptionsCount = totals.ExceptionsCount
		run.TotalsStale = stale
	})
}

func (r *memRunRepo) MarkTotalsStale(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	run.TotalsStale = true
	run.Version++
	return nil
}

func (r *memRunRepo) Delete(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
	}
	delete(r.runs, runID)
	return nil
}

// memApprovalRepo enforces the single-decision constraint the way the partial
// unique index does.
type memApprovalRepo struct {
	mu      sync.Mutex
	entries []*entity.Approval
}

func (r *memApprovalRepo) Create(ctx context.Context, approval *entity.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if approval.Stage.IsSingleDecision() {
		for _, e := range r.entries {
			if e.RunID == approval.RunID && e.Stage == approval.Stage {
				return fmt.Errorf("run %s stage %s: %w", approval.RunID, approval.Stage, entity.ErrStageAlreadyDecided)
			}
		}
	}
	stored := *approval
	stored.CreatedAt = time.Now()
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *memApprovalRepo) ListByRun(ctx context.Context, runID string) ([]*entity.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Approval
	for _, e := range r.entries {
		if e.RunID == runID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memApprovalRepo) CountByRunAndStage(ctx context.Context, runID string, stage entity.Stage) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.RunID == runID && e.Stage == stage {
			count++
		}
	}
	return count, nil
}

type memExceptionRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries []*entity.Exception
}

func (r *memExceptionRepo) ReplaceOpen(ctx context.Context, runID string, inputs []port.ExceptionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if !(e.RunID == runID && e.Status == entity.ExceptionOpen) {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	for _, in := range inputs {
		r.nextID++
		r.entries = append(r.entries, &entity.Exception{
			ID:          r.nextID,
			RunID:       runID,
			EmployeeID:  in.EmployeeID,
			Type:        in.Type,
			Severity:    entity.SeverityFor(in.Type),
			Description: in.Description,
			Status:      entity.ExceptionOpen,
			CreatedAt:   time.Now(),
		})
	}
	return nil
}

func (r *memExceptionRepo) ResolveOpenByEmployee(ctx context.Context, runID, employeeID, note string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved := 0
	for _, e := range r.entries {
		if e.RunID == runID && e.EmployeeID == employeeID && e.Status == entity.ExceptionOpen {
			e.Status = entity.ExceptionResolved
			e.ResolutionNote = note
			resolvedAt := at
			e.ResolvedAt = &resolvedAt
			resolved++
		}
	}
	return resolved, nil
}

func (r *memExceptionRepo) ListByRun(ctx context.Context, runID string) ([]*entity.Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Exception
	for _, e := range r.entries {
		if e.RunID == runID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memExceptionRepo) CountOpenBySeverity(ctx context.Context, runID string, severity entity.Severity) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.RunID == runID && e.Status == entity.ExceptionOpen && e.Severity == severity {
			count++
		}
	}
	return count, nil
}

type memAdjustmentRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries []*entity.Adjustment
}

func (r *memAdjustmentRepo) Create(ctx context.Context, adjustment *entity.Adjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	adjustment.ID = r.nextID
	stored := *adjustment
	stored.CreatedAt = time.Now()
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *memAdjustmentRepo) ListByRun(ctx context.Context, runID string) ([]*entity.Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Adjustment
	for _, e := range r.entries {
		if e.RunID == runID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memGrantRepo struct {
	mu     sync.Mutex
	nextID int64
	grants map[int64]*entity.Grant
}

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{grants: make(map[int64]*entity.Grant)}
}

func (r *memGrantRepo) Create(ctx context.Context, grant *entity.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	grant.ID = r.nextID
	stored := *grant
	r.grants[grant.ID] = &stored
	return nil
}

func (r *memGrantRepo) GetByID(ctx context.Context, kind entity.GrantKind, id int64) (*entity.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grant, ok := r.grants[id]
	if !ok || grant.Kind != kind {
		return nil, fmt.Errorf("%s %d: %w", kind, id, entity.ErrNotFound)
	}
	copied := *grant
	return &copied, nil
}

func (r *memGrantRepo) ListPending(ctx context.Context, kind entity.GrantKind) ([]*entity.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Grant
	for _, g := range r.grants {
		if g.Kind == kind && g.Status == entity.GrantPending {
			copied := *g
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memGrantRepo) CountPendingByEntity(ctx context.Context, entityName string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, g := range r.grants {
		if g.Entity == entityName && g.Status == entity.GrantPending {
			count++
		}
	}
	return count, nil
}

func (r *memGrantRepo) Update(ctx context.Context, grant *entity.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grants[grant.ID]; !ok {
		return fmt.Errorf("%s %d: %w", grant.Kind, grant.ID, entity.ErrNotFound)
	}
	stored := *grant
	r.grants[grant.ID] = &stored
	return nil
}

type memEmployeeRepo struct {
	employees []*entity.Employee
}

func (r *memEmployeeRepo) ListByEntity(ctx context.Context, entityName string) ([]*entity.Employee, error) {
	var out []*entity.Employee
	for _, e := range r.employees {
		if e.Entity == entityName {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memPayslipRepo struct {
	mu      sync.Mutex
	batches []*entity.PayslipBatch
}

func (r *memPayslipRepo) Create(ctx context.Context, batch *entity.PayslipBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.RunID == batch.RunID && b.Fingerprint == batch.Fingerprint {
			return fmt.Errorf("run %s fingerprint %s: %w", batch.RunID, batch.Fingerprint, entity.ErrConcurrentUpdate)
		}
	}
	stored := *batch
	stored.CreatedAt = time.Now()
	r.batches = append(r.batches, &stored)
	return nil
}

func (r *memPayslipRepo) GetByFingerprint(ctx context.Context, runID, fingerprint string) (*entity.PayslipBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.RunID == runID && b.Fingerprint == fingerprint {
			copied := *b
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
}

func (r *memPayslipRepo) GetLatestByRun(ctx context.Context, runID string) (*entity.PayslipBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.batches) - 1; i >= 0; i-- {
		if r.batches[i].RunID == runID {
			copied := *r.batches[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", runID, entity.ErrNotFound)
}

func (r *memPayslipRepo) ListPending(ctx context.Context, limit int) ([]*entity.PayslipBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.PayslipBatch
	for _, b := range r.batches {
		if b.Status == entity.PayslipPending {
			copied := *b
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memPayslipRepo) setStatus(id string, mutate func(*entity.PayslipBatch)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.ID == id {
			mutate(b)
			return nil
		}
	}
	return fmt.Errorf("batch %s: %w", id, entity.ErrNotFound)
}

func (r *memPayslipRepo) MarkGenerated(ctx context.Context, id, filePath string, at time.Time) error {
	return r.setStatus(id, func(b *entity.PayslipBatch) {
		b.Status = entity.PayslipGenerated
		b.FilePath = filePath
		generatedAt := at
		b.GeneratedAt = &generatedAt
	})
}

func (r *memPayslipRepo) MarkDistributed(ctx context.Context, id string, at time.Time) error {
	return r.setStatus(id, func(b *entity.PayslipBatch) {
		b.Status = entity.PayslipDistributed
		distributedAt := at
		b.DistributedAt = &distributedAt
	})
}

func (r *memPayslipRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.setStatus(id, func(b *entity.PayslipBatch) {
		b.Status = entity.PayslipFailed
		b.FailureReason = reason
	})
}

// stubCalculator returns a canned result or delegates to a func field
type stubCalculator struct {
	calculateFunc func(ctx context.Context, run *entity.PayrollRun, adjustments []*entity.Adjustment) (*port.CalculationResult, error)
}

func (c *stubCalculator) Calculate(ctx context.Context, run *entity.PayrollRun, adjustments []*entity.Adjustment) (*port.CalculationResult, error) {
	if c.calculateFunc != nil {
		return c.calculateFunc(ctx, run, adjustments)
	}
	return &port.CalculationResult{}, nil
}

// stubNotifier records delivered notices
type stubNotifier struct {
	mu         sync.Mutex
	notified   []string
	notifyFunc func(ctx context.Context, employeeID, runID, period string) error
}

func (n *stubNotifier) NotifyPayslipReady(ctx context.Context, employeeID, runID, period string) error {
	if n.notifyFunc != nil {
		return n.notifyFunc(ctx, employeeID, runID, period)
	}
	n.mu.Lock()
	n.notified = append(n.notified, employeeID)
	n.mu.Unlock()
	return nil
}
