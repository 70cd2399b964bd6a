package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmitForReview Trigger = "SUBMIT_FOR_REVIEW"
	TriggerRequestApproval Trigger = "REQUEST_APPROVAL"
	TriggerManagerApprove  Trigger = "MANAGER_APPROVE"
	TriggerManagerReject   Trigger = "MANAGER_REJECT"
	TriggerFinanceApprove  Trigger = "FINANCE_APPROVE"
	TriggerFinanceReject   Trigger = "FINANCE_REJECT"
	TriggerFreeze          Trigger = "FREEZE"
	TriggerUnfreeze        Trigger = "UNFREEZE"
	TriggerMarkPaid        Trigger = "MARK_PAID"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
