// Package timex converts between scan rates and periods.
package timex

import "time"

// PeriodFromHz returns the period of a requested frequency.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) time.Duration {
	if freqHz == 0 {
		freqHz = 1
	}
	return time.Second / time.Duration(freqHz)
}

// HzFromPeriod is the nearest whole frequency for d. Periods longer than a
// second, and non-positive ones, give 0.
func HzFromPeriod(d time.Duration) uint32 {
	if d <= 0 || d > time.Second {
		return 0
	}
	return uint32((time.Second + d/2) / d)
}
