package accounts

import "time"

// IsWithinThresholdPeriod reports whether t falls inside the window that
// started threshold ago. The threshold uses time.ParseDuration syntax,
// e.g. "24h" or "2h30m".
func IsWithinThresholdPeriod(t time.Time, threshold string) (bool, error) {
	d, err := time.ParseDuration(threshold)
	if err != nil {
		return false, err
	}
	return t.After(time.Now().Add(-d)), nil
}

// IsOutsideThresholdPeriod is the complement of IsWithinThresholdPeriod.
func IsOutsideThresholdPeriod(t time.Time, threshold string) (bool, error) {
	within, err := IsWithinThresholdPeriod(t, threshold)
	if err != nil {
		return false, err
	}
	return !within, nil
}
