package entity

import (
	"errors"
	"fmt"

	"github.com/corehr/payroll-engine/internal/domain/workflow"
)

// Engine error taxonomy. The transport adapter maps these to wire-level
// signals; inside the engine they are matched with errors.Is.
var (
	// ErrNotFound is returned when a run, grant, employee, or approval is absent
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRun is returned when a run id is already taken
	ErrDuplicateRun = errors.New("run already exists")

	// ErrForbidden is returned when the caller's roles do not cover the operation
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when an operation is not allowed from the current state
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStageAlreadyDecided is returned on a duplicate decision attempt at a run stage
	ErrStageAlreadyDecided = errors.New("stage already decided")

	// ErrAlreadyDecided is returned on a duplicate decision attempt on a grant
	ErrAlreadyDecided = errors.New("already decided")

	// ErrReasonRequired is returned when a rejection carries no reason
	ErrReasonRequired = errors.New("reason required")

	// ErrRunLocked is returned when a mutation is attempted on a locked/paid run
	ErrRunLocked = errors.New("run locked")

	// ErrInvalidAmount is returned for a malformed adjustment amount
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPeriod is returned for a malformed or out-of-window payroll period
	ErrInvalidPeriod = errors.New("invalid payroll period")

	// ErrCalculationFailed surfaces a calculation service failure
	ErrCalculationFailed = errors.New("calculation failed")

	// ErrExceptionNotFound is returned when no open exception exists for the employee
	ErrExceptionNotFound = errors.New("no open exception")

	// ErrCriticalExceptionsOpen blocks publishing while critical exceptions are unresolved
	ErrCriticalExceptionsOpen = errors.New("critical exceptions open")

	// ErrStaleTotals blocks publishing until adjustments are recalculated
	ErrStaleTotals = errors.New("run totals are stale")

	// ErrConcurrentUpdate is returned when the persisted run changed underneath a transition
	ErrConcurrentUpdate = errors.New("run was modified concurrently")

	// ErrPayslipsNotGenerated is returned when distribution is requested before generation
	ErrPayslipsNotGenerated = errors.New("payslips not generated")
)

// NewInvalidTransition builds an InvalidTransition error carrying the current
// state, the requested operation, and the states still reachable from here.
func NewInvalidTransition(current workflow.State, operation string, allowed []workflow.State) error {
	return fmt.Errorf("%w: operation %s not allowed from state %s (allowed next states: %v)",
		ErrInvalidTransition, operation, current, allowed)
}
