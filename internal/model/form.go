package model

import (
	"time"

	"github.com/google/uuid"
)

// FormStatus enumerates the lifecycle states of an assessment form.
type FormStatus string

const (
	FormStatusActive   FormStatus = "ACTIVE"
	FormStatusInactive FormStatus = "INACTIVE"
)

// AssessmentForm represents an assessment form definition.
// Duration and instructional content are immutable once attempts exist.
type AssessmentForm struct {
	ID              uuid.UUID  `json:"id"`
	Label           string     `json:"label"`
	DurationMinutes int        `json:"duration_minutes"`
	StartNote       string     `json:"start_note"`
	EndNote         string     `json:"end_note"`
	Status          FormStatus `json:"status"`
	ManagerID       int        `json:"manager_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateFormRequest is the payload for creating a new assessment form.
type CreateFormRequest struct {
	Label           string `json:"label" binding:"required,min=3,max=255"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	StartNote       string `json:"start_note" binding:"omitempty,max=10000"`
	EndNote         string `json:"end_note" binding:"omitempty,max=10000"`
}

// UpdateFormRequest is the payload for updating a form's content.
// Duration changes are rejected once attempts exist.
type UpdateFormRequest struct {
	Label           string  `json:"label" binding:"omitempty,min=3,max=255"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	StartNote       *string `json:"start_note" binding:"omitempty,max=10000"`
	EndNote         *string `json:"end_note" binding:"omitempty,max=10000"`
}

// FormForCandidate is the form metadata exposed to an authenticated candidate.
type FormForCandidate struct {
	ID              uuid.UUID  `json:"id"`
	Label           string     `json:"label"`
	DurationMinutes int        `json:"duration_minutes"`
	StartNote       string     `json:"start_note"`
	EndNote         string     `json:"end_note"`
	Status          FormStatus `json:"status"`
}
