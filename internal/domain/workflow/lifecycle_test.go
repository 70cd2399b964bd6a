package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestLifecycleTransitions(t *testing.T) {
	cases := []struct {
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{StateDraft, TriggerSubmitForReview, StateUnderReview, false},
		{StateUnderReview, TriggerRequestApproval, StatePendingManagerApproval, false},
		{StateUnderReview, TriggerManagerReject, StateRejected, false},
		{StatePendingManagerApproval, TriggerManagerApprove, StatePendingFinanceApproval, false},
		{StatePendingManagerApproval, TriggerManagerReject, StateRejected, false},
		{StatePendingFinanceApproval, TriggerFinanceApprove, StateApproved, false},
		{StatePendingFinanceApproval, TriggerFinanceReject, StateRejected, false},
		{StateApproved, TriggerFreeze, StateLocked, false},
		{StateApproved, TriggerMarkPaid, StatePaid, false},
		{StateLocked, TriggerUnfreeze, StateApproved, false},
		{StateLocked, TriggerMarkPaid, StatePaid, false},

		{StateDraft, TriggerManagerApprove, StateDraft, true},
		{StateDraft, TriggerMarkPaid, StateDraft, true},
		{StateUnderReview, TriggerFinanceApprove, StateUnderReview, true},
		{StatePendingManagerApproval, TriggerFinanceApprove, StatePendingManagerApproval, true},
		{StatePendingFinanceApproval, TriggerManagerApprove, StatePendingFinanceApproval, true},
		{StateApproved, TriggerUnfreeze, StateApproved, true},
		{StateLocked, TriggerFreeze, StateLocked, true},
		{StatePaid, TriggerFreeze, StatePaid, true},
		{StateRejected, TriggerSubmitForReview, StateRejected, true},
	}

	for _, tc := range cases {
		name := fmt.Sprintf("%s_%s", tc.from, tc.trigger)
		t.Run(name, func(t *testing.T) {
			m := BuildLifecycleMachine(tc.from, nil)
			err := m.Fire(context.Background(), tc.trigger)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if m.State() != tc.from {
					t.Fatalf("state changed on refused transition: %s", m.State())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.State() != tc.want {
				t.Fatalf("expected state %s, got %s", tc.want, m.State())
			}
		})
	}
}

func TestLifecycleTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, state := range []State{StatePaid, StateRejected} {
		m := BuildLifecycleMachine(state, nil)
		if triggers := m.PermittedTriggers(); len(triggers) != 0 {
			t.Fatalf("terminal state %s permits triggers: %v", state, triggers)
		}
		if !state.IsTerminal() {
			t.Fatalf("state %s should be terminal", state)
		}
	}
}

func TestPublishGuardBlocksBothHops(t *testing.T) {
	blocked := errors.New("totals not ready")
	guard := PublishGuard(func(ctx context.Context) error { return blocked })

	m := BuildLifecycleMachine(StateDraft, guard)
	err := m.Fire(context.Background(), TriggerSubmitForReview)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed, got %v", err)
	}
	if !errors.Is(err, blocked) {
		t.Fatalf("guard cause not preserved: %v", err)
	}
	if m.State() != StateDraft {
		t.Fatalf("state changed despite guard: %s", m.State())
	}

	m = BuildLifecycleMachine(StateUnderReview, guard)
	if err := m.Fire(context.Background(), TriggerRequestApproval); !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("expected ErrGuardFailed, got %v", err)
	}
}

func TestPublishGuardDoesNotBlockRejection(t *testing.T) {
	guard := PublishGuard(func(ctx context.Context) error { return errors.New("blocked") })

	m := BuildLifecycleMachine(StateUnderReview, guard)
	if err := m.Fire(context.Background(), TriggerManagerReject); err != nil {
		t.Fatalf("rejection must not consult the publish guard: %v", err)
	}
	if m.State() != StateRejected {
		t.Fatalf("expected rejected, got %s", m.State())
	}
}

func TestPublishGuardPasses(t *testing.T) {
	guard := PublishGuard(func(ctx context.Context) error { return nil })

	m := BuildLifecycleMachine(StateDraft, guard)
	if err := m.Fire(context.Background(), TriggerSubmitForReview); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != StateUnderReview {
		t.Fatalf("expected under_review, got %s", m.State())
	}
}

func TestDeletableStates(t *testing.T) {
	deletable := map[State]bool{StateDraft: true, StateRejected: true}
	for state := range validStates {
		if state.IsDeletable() != deletable[state] {
			t.Fatalf("IsDeletable(%s) = %v", state, state.IsDeletable())
		}
	}
}

func TestPermittedStates(t *testing.T) {
	m := BuildLifecycleMachine(StateApproved, nil)
	states := m.PermittedStates()
	if len(states) != 2 || states[0] != StateLocked || states[1] != StatePaid {
		t.Fatalf("unexpected permitted states from approved: %v", states)
	}
}
