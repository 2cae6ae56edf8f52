package handler

import (
	"errors"
	"net/http"

	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CandidateHandler handles candidate-facing endpoints: form access, the
// attempt lifecycle and proctoring warnings.
type CandidateHandler struct {
	formService    *service.FormService
	fieldService   *service.FieldService
	attemptService *service.AttemptService
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(
	formService *service.FormService,
	fieldService *service.FieldService,
	attemptService *service.AttemptService,
	proctorService *service.ProctorService,
	log zerolog.Logger,
) *CandidateHandler {
	return &CandidateHandler{
		formService:    formService,
		fieldService:   fieldService,
		attemptService: attemptService,
		proctorService: proctorService,
		log:            log.With().Str("component", "candidate_handler").Logger(),
	}
}

// candidateScope extracts and validates the form ID and email for the
// authenticated candidate. The JWT middleware has already matched the token
// against the route's form.
func candidateScope(c *gin.Context) (uuid.UUID, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, "", false
	}

	formID, err := uuid.Parse(c.Param("form_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, "", false
	}

	return formID, claims.Email, true
}

// GetForm godoc
// GET /api/v1/candidate/forms/:form_id
// Returns the form metadata the candidate sees before starting.
func (h *CandidateHandler) GetForm(c *gin.Context) {
	formID, _, ok := candidateScope(c)
	if !ok {
		return
	}

	form, err := h.formService.Get(c.Request.Context(), formID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"form": model.FormForCandidate{
		ID:              form.ID,
		Label:           form.Label,
		DurationMinutes: form.DurationMinutes,
		StartNote:       form.StartNote,
		EndNote:         form.EndNote,
		Status:          form.Status,
	}})
}

// GetFields godoc
// GET /api/v1/candidate/forms/:form_id/fields
// Returns the form's field definitions in render order.
func (h *CandidateHandler) GetFields(c *gin.Context) {
	formID, _, ok := candidateScope(c)
	if !ok {
		return
	}

	fields, err := h.fieldService.ListByForm(c.Request.Context(), formID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"fields": fields})
}

// StartAttempt godoc
// POST /api/v1/candidate/forms/:form_id/attempts
// One-time attempt start at terms acceptance; idempotent on repeat calls.
func (h *CandidateHandler) StartAttempt(c *gin.Context) {
	formID, email, ok := candidateScope(c)
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), formID, email, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTermsRequired):
			response.Fail(c, http.StatusBadRequest, response.ErrTermsRequired)
		case errors.Is(err, service.ErrFormNotAvailable):
			response.Fail(c, http.StatusForbidden, response.ErrFormNotAvailable)
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusForbidden, response.ErrAlreadySubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetAttemptState godoc
// GET /api/v1/candidate/forms/:form_id/attempts/current
// Returns the snapshot the client rebuilds from after a refresh: status,
// warnings, autosaved answers and server-computed remaining time.
func (h *CandidateHandler) GetAttemptState(c *gin.Context) {
	formID, email, ok := candidateScope(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), formID, email)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// RecordWarning godoc
// POST /api/v1/candidate/forms/:form_id/warnings
// Records one visibility-loss event. Crossing the threshold force-submits
// the attempt and says so in the response.
func (h *CandidateHandler) RecordWarning(c *gin.Context) {
	formID, email, ok := candidateScope(c)
	if !ok {
		return
	}

	var req model.RecordWarningRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.proctorService.RecordViolation(c.Request.Context(), formID, email, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// FinalizeAttempt godoc
// PUT /api/v1/candidate/forms/:form_id/submission
// Submits the final answer payload. Idempotent: once submitted, repeat calls
// return the stored record. Late submissions are accepted and flagged.
func (h *CandidateHandler) FinalizeAttempt(c *gin.Context) {
	formID, email, ok := candidateScope(c)
	if !ok {
		return
	}

	var req model.FinalizeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// Client-reported elapsed time is diagnostic only; the server clock
	// decides the verdict.
	if req.ClientElapsedMs > 0 {
		h.log.Debug().
			Str("form_id", formID.String()).
			Str("email", email).
			Int64("client_elapsed_ms", req.ClientElapsedMs).
			Msg("client elapsed time reported")
	}

	// The response ID must match the attempt this candidate started: a stale
	// ID from an earlier session or another tab cannot finalize the attempt.
	if _, err := h.attemptService.Resume(c.Request.Context(), formID, email, req.ResponseID); err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	attempt, err := h.attemptService.Finalize(c.Request.Context(), formID, email, req.Answers, false)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
