package entity

import "time"

// PayslipBatchStatus is the lifecycle of one generation attempt.
type PayslipBatchStatus string

const (
	PayslipPending     PayslipBatchStatus = "pending"
	PayslipGenerated   PayslipBatchStatus = "generated"
	PayslipDistributed PayslipBatchStatus = "distributed"
	PayslipFailed      PayslipBatchStatus = "failed"
)

// PayslipBatch records one payslip generation attempt for a run. Batches are
// keyed by (run, fingerprint) so re-invoking generation for unchanged figures
// returns the existing batch instead of producing duplicates.
type PayslipBatch struct {
	ID            string
	RunID         string
	Fingerprint   string
	Status        PayslipBatchStatus
	FilePath      string
	EmployeeCount int
	FailureReason string
	CreatedAt     time.Time
	GeneratedAt   *time.Time
	DistributedAt *time.Time
}
