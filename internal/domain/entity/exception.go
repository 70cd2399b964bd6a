package entity

import "time"

// ExceptionType enumerates per-employee anomalies detected during calculation.
type ExceptionType string

const (
	ExceptionNegativeNetPay     ExceptionType = "NEGATIVE_NET_PAY"
	ExceptionMissingBankDetails ExceptionType = "MISSING_BANK_DETAILS"
	ExceptionCalculationError   ExceptionType = "CALCULATION_ERROR"
	ExceptionZeroBaseSalary     ExceptionType = "ZERO_BASE_SALARY"
	ExceptionExcessivePenalties ExceptionType = "EXCESSIVE_PENALTIES"
)

// Severity classifies how strongly an exception blocks run progression.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// SeverityFor derives severity from the exception type. The mapping is fixed:
// calculation failures are critical and block publishing, data anomalies are
// high, anything unrecognized is medium.
func SeverityFor(t ExceptionType) Severity {
	switch t {
	case ExceptionCalculationError:
		return SeverityCritical
	case ExceptionNegativeNetPay, ExceptionExcessivePenalties,
		ExceptionZeroBaseSalary, ExceptionMissingBankDetails:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ExceptionStatus is the open/resolved lifecycle of an exception record.
type ExceptionStatus string

const (
	ExceptionOpen     ExceptionStatus = "open"
	ExceptionResolved ExceptionStatus = "resolved"
)

// Exception is a per-employee anomaly for a run. Records are never deleted;
// resolution keeps them for audit.
type Exception struct {
	ID             int64
	RunID          string
	EmployeeID     string
	Type           ExceptionType
	Severity       Severity
	Description    string
	Status         ExceptionStatus
	ResolutionNote string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}
