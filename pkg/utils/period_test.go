package utils

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	valid := []string{"2025-01", "2025-12", "1999-06"}
	for _, period := range valid {
		if _, err := ParsePeriod(period); err != nil {
			t.Errorf("ParsePeriod(%q) unexpected error: %v", period, err)
		}
	}

	invalid := []string{"", "2025", "2025-9", "2025-13", "2025-00", "2025/09", "2025-09-01", "sept 2025"}
	for _, period := range invalid {
		if _, err := ParsePeriod(period); err == nil {
			t.Errorf("ParsePeriod(%q) should fail", period)
		}
	}
}

func TestValidatePeriodWindow(t *testing.T) {
	now := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		period string
		window int
		ok     bool
	}{
		{"2025-09", 2, true},
		{"2025-07", 2, true},
		{"2025-11", 2, true},
		{"2025-06", 2, false},
		{"2025-12", 2, false},
		{"2020-01", 0, true}, // window disabled
		{"bad", 2, false},
	}
	for _, tc := range cases {
		err := ValidatePeriod(tc.period, now, tc.window)
		if tc.ok && err != nil {
			t.Errorf("ValidatePeriod(%q, window %d) unexpected error: %v", tc.period, tc.window, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidatePeriod(%q, window %d) should fail", tc.period, tc.window)
		}
	}
}

func TestNextPeriod(t *testing.T) {
	cases := map[string]string{
		"2025-01": "2025-02",
		"2025-11": "2025-12",
		"2025-12": "2026-01",
	}
	for period, want := range cases {
		got, err := NextPeriod(period)
		if err != nil {
			t.Fatalf("NextPeriod(%q) unexpected error: %v", period, err)
		}
		if got != want {
			t.Errorf("NextPeriod(%q) = %q, want %q", period, got, want)
		}
	}

	if _, err := NextPeriod("2025"); err == nil {
		t.Error("NextPeriod with malformed input should fail")
	}
}
