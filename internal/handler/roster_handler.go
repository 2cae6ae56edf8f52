package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// RosterHandler handles manager-facing candidate selection endpoints.
type RosterHandler struct {
	rosterService *service.RosterService
}

// NewRosterHandler creates a new RosterHandler.
func NewRosterHandler(rosterService *service.RosterService) *RosterHandler {
	return &RosterHandler{rosterService: rosterService}
}

// Select godoc
// POST /api/v1/manager/forms/:form_id/roster
// Adds candidates to the form's roster; duplicates are skipped.
func (h *RosterHandler) Select(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	var req model.SelectCandidatesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	added, err := h.rosterService.SelectCandidates(c.Request.Context(), formID, managerID, req)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"requested": len(req.Candidates),
		"added":     added,
		"skipped":   len(req.Candidates) - added,
	})
}

// List godoc
// GET /api/v1/manager/forms/:form_id/roster?page=&per_page=
func (h *RosterHandler) List(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	entries, pagination, err := h.rosterService.List(c.Request.Context(), formID, managerID, page, perPage)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"candidates": entries}, pagination)
}

// Remove godoc
// DELETE /api/v1/manager/forms/:form_id/roster/:email
// Refused once the candidate has started an attempt.
func (h *RosterHandler) Remove(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	email := c.Param("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	err := h.rosterService.Remove(c.Request.Context(), formID, managerID, email)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotFormOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, repository.ErrRosterHasAttempt):
			response.Fail(c, http.StatusConflict, response.ErrActionForbidden)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
