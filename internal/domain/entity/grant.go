package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// GrantKind distinguishes the two structurally identical sub-workflows.
type GrantKind string

const (
	GrantSigningBonus GrantKind = "signing_bonus"
	GrantBenefit      GrantKind = "benefit"
)

// GrantStatus is the two-state-plus-terminal sub-workflow status.
type GrantStatus string

const (
	GrantPending  GrantStatus = "pending"
	GrantApproved GrantStatus = "approved"
	GrantRejected GrantStatus = "rejected"
)

// IsTerminal reports whether the grant can no longer change.
func (s GrantStatus) IsTerminal() bool {
	return s == GrantApproved || s == GrantRejected
}

// Grant is a signing-bonus or benefit award waiting for approval. Created by
// onboarding/benefits enrollment, decided here, terminal once decided.
type Grant struct {
	ID          int64
	Kind        GrantKind
	EmployeeID  string
	Entity      string
	GivenAmount decimal.Decimal
	PaymentDate time.Time
	Status      GrantStatus
	DecidedBy   string
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
