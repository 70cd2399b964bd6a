package utils

import (
	"fmt"
	"time"
)

// PeriodLayout is the payroll period key format (one calendar month).
const PeriodLayout = "2006-01"

// ParsePeriod parses a strict YYYY-MM period key.
func ParsePeriod(period string) (time.Time, error) {
	if len(period) != len(PeriodLayout) {
		return time.Time{}, fmt.Errorf("period must be in YYYY-MM format: %s", period)
	}
	t, err := time.Parse(PeriodLayout, period)
	if err != nil {
		return time.Time{}, fmt.Errorf("period must be in YYYY-MM format: %s", period)
	}
	return t, nil
}

// ValidatePeriod checks the format and that the period lies within
// windowMonths of the current month in either direction. windowMonths <= 0
// disables the window check.
func ValidatePeriod(period string, now time.Time, windowMonths int) error {
	t, err := ParsePeriod(period)
	if err != nil {
		return err
	}
	if windowMonths <= 0 {
		return nil
	}

	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	earliest := current.AddDate(0, -windowMonths, 0)
	latest := current.AddDate(0, windowMonths, 0)
	if t.Before(earliest) || t.After(latest) {
		return fmt.Errorf("period %s outside allowed window (%s to %s)",
			period, earliest.Format(PeriodLayout), latest.Format(PeriodLayout))
	}
	return nil
}

// NextPeriod returns the month after the given period key.
func NextPeriod(period string) (string, error) {
	t, err := ParsePeriod(period)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 1, 0).Format(PeriodLayout), nil
}
