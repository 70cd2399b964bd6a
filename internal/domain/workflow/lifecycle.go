package workflow

// PublishGuard gates the two publish hops (draft submission and escalation to
// the manager queue). A nil guard permits both unconditionally.
type PublishGuard GuardFunc

// BuildLifecycleMachine configures the payroll run lifecycle:
//
//	draft -> under_review -> pending_manager_approval -> pending_finance_approval -> approved
//	(review/pending states) -> rejected
//	approved <-> locked, approved/locked -> paid
//
// publishGuard, when non-nil, is evaluated before leaving draft and before
// entering the manager queue.
func BuildLifecycleMachine(current State, publishGuard PublishGuard) StateMachine {
	builder := NewBuilder()

	guard := GuardFunc(publishGuard)
	if publishGuard == nil {
		guard = nil
	}

	if guard != nil {
		builder.Configure(StateDraft).
			PermitIf(TriggerSubmitForReview, StateUnderReview, guard)
		builder.Configure(StateUnderReview).
			PermitIf(TriggerRequestApproval, StatePendingManagerApproval, guard).
			Permit(TriggerManagerReject, StateRejected)
	} else {
		builder.Configure(StateDraft).
			Permit(TriggerSubmitForReview, StateUnderReview)
		builder.Configure(StateUnderReview).
			Permit(TriggerRequestApproval, StatePendingManagerApproval).
			Permit(TriggerManagerReject, StateRejected)
	}

	builder.Configure(StatePendingManagerApproval).
		Permit(TriggerManagerApprove, StatePendingFinanceApproval).
		Permit(TriggerManagerReject, StateRejected)

	builder.Configure(StatePendingFinanceApproval).
		Permit(TriggerFinanceApprove, StateApproved).
		Permit(TriggerFinanceReject, StateRejected)

	builder.Configure(StateApproved).
		Permit(TriggerFreeze, StateLocked).
		Permit(TriggerMarkPaid, StatePaid)

	builder.Configure(StateLocked).
		Permit(TriggerUnfreeze, StateApproved).
		Permit(TriggerMarkPaid, StatePaid)

	return builder.Build(current)
}
