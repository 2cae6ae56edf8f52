package model

import "time"

// AttemptStatusRow is one candidate's live state on the proctoring dashboard.
type AttemptStatusRow struct {
	Email      string        `json:"email"`
	Status     AttemptStatus `json:"status"`
	Warnings   int           `json:"warnings"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// MonitorEvent is the payload pushed over the form's monitor channel whenever
// a candidate's state changes. Type is one of WARNING, SUBMITTED or
// FORCED_SUBMITTED.
type MonitorEvent struct {
	Type     string `json:"type"`
	Email    string `json:"email"`
	Warnings int    `json:"warnings,omitempty"`
	// EventType carries the violation kind for WARNING events.
	EventType string    `json:"event_type,omitempty"`
	At        time.Time `json:"at"`
}
