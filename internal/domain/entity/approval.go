package entity

import "time"

// Stage is an approval checkpoint in the run lifecycle.
type Stage string

const (
	StageManager  Stage = "manager"
	StageFinance  Stage = "finance"
	StageFreeze   Stage = "freeze"
	StageUnfreeze Stage = "unfreeze"
)

// IsSingleDecision reports whether the stage admits exactly one decision per
// run (manager and finance). Freeze/unfreeze cycles may repeat.
func (s Stage) IsSingleDecision() bool {
	return s == StageManager || s == StageFinance
}

// Decision is the outcome recorded for a stage.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Approval is one immutable entry in the append-only approval ledger.
type Approval struct {
	ID         string
	RunID      string
	Stage      Stage
	Decision   Decision
	ApproverID string
	Reason     string
	CreatedAt  time.Time
}
