package port

import (
	"context"

	"github.com/corehr/payroll-engine/internal/domain/entity"
)

// PayslipRenderer produces the payslip register artifact for a batch and
// returns the written file path.
type PayslipRenderer interface {
	Render(ctx context.Context, run *entity.PayrollRun, batch *entity.PayslipBatch, lines []PayLine) (string, error)
}

// PayslipNotifier delivers a payslip-ready notice to one employee during
// distribution.
type PayslipNotifier interface {
	NotifyPayslipReady(ctx context.Context, employeeID, runID, period string) error
}
