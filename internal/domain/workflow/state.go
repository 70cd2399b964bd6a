package workflow

// State represents a payroll run state in the run lifecycle
type State string

const (
	StateDraft                  State = "draft"
	StateUnderReview            State = "under_review"
	StatePendingManagerApproval State = "pending_manager_approval"
	StatePendingFinanceApproval State = "pending_finance_approval"
	StateApproved               State = "approved"
	StateLocked                 State = "locked"
	StatePaid                   State = "paid"
	StateRejected               State = "rejected"
)

var validStates = map[State]bool{
	StateDraft:                  true,
	StateUnderReview:            true,
	StatePendingManagerApproval: true,
	StatePendingFinanceApproval: true,
	StateApproved:               true,
	StateLocked:                 true,
	StatePaid:                   true,
	StateRejected:               true,
}

var terminalStates = map[State]bool{
	StatePaid:     true,
	StateRejected: true,
}

var deletableStates = map[State]bool{
	StateDraft:    true,
	StateRejected: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsDeletable returns true if a run in this state may be hard-deleted
func (s State) IsDeletable() bool {
	return deletableStates[s]
}

// IsValid returns true if the state is a valid run lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
