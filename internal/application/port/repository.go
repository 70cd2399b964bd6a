package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corehr/payroll-engine/internal/domain/entity"
	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

// TransactionManager runs a function inside a database transaction. Nested
// calls reuse the transaction already carried by the context.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunStatusUpdate is the atomic status write applied by a transition. The
// update only succeeds when the persisted version still matches
// ExpectedVersion; the run's version is incremented in the same statement.
type RunStatusUpdate struct {
	Status          workflow.State
	RejectReason    *string
	ExpectedVersion int64
}

// RunTotals carries the figures derived from one calculation pass.
type RunTotals struct {
	Employees       int
	TotalNetPay     decimal.Decimal
	ExceptionsCount int
}

// RunRepository persists payroll runs.
type RunRepository interface {
	Create(ctx context.Context, run *entity.PayrollRun) error
	GetByRunID(ctx context.Context, runID string) (*entity.PayrollRun, error)
	ListByStatus(ctx context.Context, status workflow.State) ([]*entity.PayrollRun, error)
	GetLatestByEntity(ctx context.Context, entityName string) (*entity.PayrollRun, error)
	UpdateStatus(ctx context.Context, runID string, update RunStatusUpdate) error
	UpdatePeriod(ctx context.Context, runID, period string, expectedVersion int64) error
	UpdateTotals(ctx context.Context, runID string, totals RunTotals, stale bool, expectedVersion int64) error
	MarkTotalsStale(ctx context.Context, runID string) error
	Delete(ctx context.Context, runID string) error
}

// ApprovalRepository is the append-only approval ledger. Entries are never
// mutated or removed.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *entity.Approval) error
	ListByRun(ctx context.Context, runID string) ([]*entity.Approval, error)
	CountByRunAndStage(ctx context.Context, runID string, stage entity.Stage) (int, error)
}

// ExceptionInput is one freshly derived anomaly from a calculation pass.
type ExceptionInput struct {
	EmployeeID  string
	Type        entity.ExceptionType
	Description string
}

// ExceptionRepository tracks per-employee exceptions. Resolved records are
// retained for audit; only the open set is replaced on recalculation.
type ExceptionRepository interface {
	ReplaceOpen(ctx context.Context, runID string, inputs []ExceptionInput) error
	ResolveOpenByEmployee(ctx context.Context, runID, employeeID, note string, at time.Time) (int, error)
	ListByRun(ctx context.Context, runID string) ([]*entity.Exception, error)
	CountOpenBySeverity(ctx context.Context, runID string, severity entity.Severity) (int, error)
}

// AdjustmentRepository holds the manual adjustment ledger for a run.
type AdjustmentRepository interface {
	Create(ctx context.Context, adjustment *entity.Adjustment) error
	ListByRun(ctx context.Context, runID string) ([]*entity.Adjustment, error)
}

// GrantRepository persists signing-bonus and benefit grants.
type GrantRepository interface {
	Create(ctx context.Context, grant *entity.Grant) error
	GetByID(ctx context.Context, kind entity.GrantKind, id int64) (*entity.Grant, error)
	ListPending(ctx context.Context, kind entity.GrantKind) ([]*entity.Grant, error)
	CountPendingByEntity(ctx context.Context, entityName string) (int, error)
	Update(ctx context.Context, grant *entity.Grant) error
}

// EmployeeRepository reads the employee master for an entity.
type EmployeeRepository interface {
	ListByEntity(ctx context.Context, entityName string) ([]*entity.Employee, error)
}

// PayslipRepository persists payslip generation batches.
type PayslipRepository interface {
	Create(ctx context.Context, batch *entity.PayslipBatch) error
	GetByFingerprint(ctx context.Context, runID, fingerprint string) (*entity.PayslipBatch, error)
	GetLatestByRun(ctx context.Context, runID string) (*entity.PayslipBatch, error)
	ListPending(ctx context.Context, limit int) ([]*entity.PayslipBatch, error)
	MarkGenerated(ctx context.Context, id, filePath string, at time.Time) error
	MarkDistributed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
}
