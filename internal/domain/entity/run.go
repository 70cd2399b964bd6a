package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

// PayrollRun is one payroll cycle for one entity/period. It is the single
// shared mutable resource per run; all status writes funnel through the run
// service.
type PayrollRun struct {
	ID              int64
	RunID           string
	Entity          string
	PayrollPeriod   string
	Status          workflow.State
	Employees       int
	TotalNetPay     decimal.Decimal
	ExceptionsCount int
	TotalsStale     bool
	RejectReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
