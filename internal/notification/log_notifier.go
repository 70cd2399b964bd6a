package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier records notices in the log instead of delivering them. Used in
// development and when no IM channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyPayslipReady logs the notice
func (n *LogNotifier) NotifyPayslipReady(ctx context.Context, employeeID, runID, period string) error {
	n.logger.Info("Payslip notice (log only)",
		zap.String("employee_id", employeeID),
		zap.String("run_id", runID),
		zap.String("period", period))
	return nil
}
