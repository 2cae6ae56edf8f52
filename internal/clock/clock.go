// Package clock derives authoritative attempt timing from a server-recorded
// start timestamp and a form's configured duration. Both the candidate state
// endpoint (advisory countdown) and the submission finalizer (authoritative
// accept/flag decision) go through this package so there is exactly one
// source of time arithmetic.
package clock

import "time"

// RemainingMillis returns the milliseconds left in an attempt, floored at
// zero. remaining = durationMinutes*60_000 − (now − startedAt).
func RemainingMillis(durationMinutes int, startedAt, now time.Time) int64 {
	allotted := int64(durationMinutes) * 60_000
	elapsed := now.Sub(startedAt).Milliseconds()
	remaining := allotted - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Verdict is the finalization-time evaluation of an attempt's elapsed time.
type Verdict struct {
	ElapsedMs   int64
	RemainingMs int64
	// Late is true when the attempt ran past its allotted duration plus the
	// grace window. Late submissions are still accepted (rejecting would
	// strand the candidate) but the result is flagged and logged.
	Late bool
}

// Check evaluates an attempt's timing at finalization. The grace window
// absorbs transport latency; anything beyond it is Late.
func Check(durationMinutes int, grace time.Duration, startedAt, now time.Time) Verdict {
	allotted := int64(durationMinutes) * 60_000
	elapsed := now.Sub(startedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := allotted - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return Verdict{
		ElapsedMs:   elapsed,
		RemainingMs: remaining,
		Late:        elapsed > allotted+grace.Milliseconds(),
	}
}
