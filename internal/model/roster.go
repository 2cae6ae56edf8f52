package model

import (
	"time"

	"github.com/google/uuid"
)

// RosterEntry is one candidate permitted to attempt a form. Email and
// mobile are unique within a form's roster.
type RosterEntry struct {
	FormID         uuid.UUID `json:"form_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Mobile         string    `json:"mobile"`
	Institution    string    `json:"institution,omitempty"`
	Major          string    `json:"major,omitempty"`
	GraduationYear *int      `json:"graduation_year,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RosterCandidateInput is one candidate in a roster-selection request.
type RosterCandidateInput struct {
	Name           string `json:"name" binding:"required,min=1,max=255"`
	Email          string `json:"email" binding:"required,email"`
	Mobile         string `json:"mobile" binding:"required,min=4,max=20"`
	Institution    string `json:"institution" binding:"omitempty,max=255"`
	Major          string `json:"major" binding:"omitempty,max=255"`
	GraduationYear *int   `json:"graduation_year" binding:"omitempty,min=1900,max=2100"`
}

// SelectCandidatesRequest adds candidates to a form's roster.
// Duplicates (by email or mobile) are skipped, not errored.
type SelectCandidatesRequest struct {
	Candidates []RosterCandidateInput `json:"candidates" binding:"required,min=1,dive"`
}
