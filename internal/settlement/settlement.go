// Package settlement computes recognized presence minutes for one
// completed (or still-open) interval. It is the single source of the
// break-overlap arithmetic: the state machine settles check-outs with
// it and the live projector recomputes display minutes with it. Do not
// inline this math anywhere else.
package settlement

import (
	"time"

	"presenza/internal/rules"
)

// Result is the settlement triple recorded on every EXIT log entry.
type Result struct {
	RawMinutes        int `json:"raw_minutes"`
	DeductionMinutes  int `json:"deduction_minutes"`
	RecognizedMinutes int `json:"recognized_minutes"`
}

// Settle computes raw duration, break deduction, and recognized minutes
// for the interval [checkInAt, now] against the zone's break windows on
// the given day.
//
// Raw minutes floor to whole minutes and clamp to zero so clock skew
// can never produce negative accrual. Each break window contributes the
// minute-floor of its positive intersection with the interval; windows
// are summed without de-duplication (the configuration contract keeps
// them non-overlapping). Malformed break windows are skipped: a config
// typo must not block settlement.
func Settle(checkInAt, now time.Time, breaks []rules.BreakWindow, day time.Time) Result {
	raw := wholeMinutes(now.Sub(checkInAt))

	deduction := 0
	for _, b := range breaks {
		breakStart, breakEnd, err := b.Interval(day)
		if err != nil {
			continue
		}
		overlapStart := maxTime(checkInAt, breakStart)
		overlapEnd := minTime(now, breakEnd)
		if overlapEnd.After(overlapStart) {
			deduction += wholeMinutes(overlapEnd.Sub(overlapStart))
		}
	}

	recognized := raw - deduction
	if recognized < 0 {
		recognized = 0
	}

	return Result{
		RawMinutes:        raw,
		DeductionMinutes:  deduction,
		RecognizedMinutes: recognized,
	}
}

func wholeMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
