package entity

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		exceptionType ExceptionType
		want          Severity
	}{
		{ExceptionCalculationError, SeverityCritical},
		{ExceptionNegativeNetPay, SeverityHigh},
		{ExceptionExcessivePenalties, SeverityHigh},
		{ExceptionZeroBaseSalary, SeverityHigh},
		{ExceptionMissingBankDetails, SeverityHigh},
		{ExceptionType("DUPLICATE_EMPLOYEE"), SeverityMedium},
	}
	for _, tc := range cases {
		if got := SeverityFor(tc.exceptionType); got != tc.want {
			t.Errorf("SeverityFor(%s) = %s, want %s", tc.exceptionType, got, tc.want)
		}
	}
}

func TestNormalizeAmount(t *testing.T) {
	cases := []struct {
		adjType AdjustmentType
		amount  string
		want    string
	}{
		{AdjustmentDeduction, "250.00", "-250"},
		{AdjustmentDeduction, "-250.00", "-250"},
		{AdjustmentBonus, "100", "100"},
		{AdjustmentBonus, "-100", "100"},
		{AdjustmentBenefit, "-55.50", "55.5"},
	}
	for _, tc := range cases {
		got := NormalizeAmount(tc.adjType, decimal.RequireFromString(tc.amount))
		if got.String() != tc.want {
			t.Errorf("NormalizeAmount(%s, %s) = %s, want %s", tc.adjType, tc.amount, got, tc.want)
		}
	}
}

func TestAdjustmentTypeIsValid(t *testing.T) {
	for _, valid := range []AdjustmentType{AdjustmentBonus, AdjustmentDeduction, AdjustmentBenefit} {
		if !valid.IsValid() {
			t.Errorf("%s should be valid", valid)
		}
	}
	if AdjustmentType("rebate").IsValid() {
		t.Error("unknown type should be invalid")
	}
}

func TestStageIsSingleDecision(t *testing.T) {
	cases := map[Stage]bool{
		StageManager:  true,
		StageFinance:  true,
		StageFreeze:   false,
		StageUnfreeze: false,
	}
	for stage, want := range cases {
		if got := stage.IsSingleDecision(); got != want {
			t.Errorf("IsSingleDecision(%s) = %v, want %v", stage, got, want)
		}
	}
}

func TestGrantStatusIsTerminal(t *testing.T) {
	cases := map[GrantStatus]bool{
		GrantPending:  false,
		GrantApproved: true,
		GrantRejected: true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}
