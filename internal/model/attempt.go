package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates candidate attempt states. SUBMITTED is terminal.
type AttemptStatus string

const (
	AttemptStatusNotSubmitted AttemptStatus = "NOT_SUBMITTED"
	AttemptStatusSubmitted    AttemptStatus = "SUBMITTED"
)

// CandidateAttempt is one candidate's record of taking one assessment form.
// Keyed by (form_id, email); email is unique per form.
type CandidateAttempt struct {
	FormID uuid.UUID `json:"form_id"`
	Email  string    `json:"email"`
	// ResponseID is the client-generated opaque identifier used for
	// idempotent attempt creation and resume-after-refresh.
	ResponseID uuid.UUID `json:"response_id"`
	// Answers is the final payload, a map from field UUID to answer.
	Answers json.RawMessage `json:"answers,omitempty"`
	// DraftAnswers holds autosaved in-progress answers.
	DraftAnswers  json.RawMessage `json:"draft_answers,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	DurationMs    *int64          `json:"duration_ms,omitempty"`
	Status        AttemptStatus   `json:"status"`
	TermsAccepted bool            `json:"terms_accepted"`
	Warnings      int             `json:"warnings"`
	// Late marks a finalization that arrived past the allotted duration plus
	// the grace window. Late submissions are accepted, never rejected.
	Late    bool     `json:"late"`
	Remarks *string  `json:"remarks,omitempty"`
	Score   *float64 `json:"score,omitempty"`
}

// CandidateLoginRequest is the payload for a candidate logging in to one form.
type CandidateLoginRequest struct {
	FormID   uuid.UUID `json:"form_id" binding:"required"`
	Email    string    `json:"email" binding:"required,email"`
	Password string    `json:"password" binding:"required,min=4,max=20"`
}

// StartAttemptRequest is the payload for the one-time attempt start
// (terms acceptance). Idempotent on ResponseID.
type StartAttemptRequest struct {
	ResponseID    uuid.UUID `json:"response_id" binding:"required"`
	TermsAccepted bool      `json:"terms_accepted" binding:"required"`
}

// FinalizeRequest is the payload for submitting the final answers.
type FinalizeRequest struct {
	ResponseID      uuid.UUID       `json:"response_id" binding:"required"`
	Answers         json.RawMessage `json:"answers" binding:"required"`
	ClientElapsedMs int64           `json:"client_elapsed_ms" binding:"omitempty,min=0"`
}

// RecordWarningRequest is the payload for a proctoring violation event.
type RecordWarningRequest struct {
	EventType string          `json:"event_type" binding:"required,oneof=TAB_HIDDEN WINDOW_BLUR FULLSCREEN_EXIT"`
	Payload   json.RawMessage `json:"payload" binding:"omitempty"`
}

// ReviewRequest sets a manager's score and remarks on a submitted attempt.
type ReviewRequest struct {
	Score   *float64 `json:"score" binding:"omitempty,min=0"`
	Remarks *string  `json:"remarks" binding:"omitempty,max=10000"`
}
