package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FormHandler handles manager-facing form management endpoints.
type FormHandler struct {
	formService *service.FormService
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(formService *service.FormService) *FormHandler {
	return &FormHandler{formService: formService}
}

// managerScope extracts the authenticated manager ID and the :form_id param.
func managerScope(c *gin.Context) (uuid.UUID, int, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, 0, false
	}

	formID, err := uuid.Parse(c.Param("form_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, 0, false
	}

	return formID, claims.ManagerID, true
}

func failFormError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotFormOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrFormHasAttempts), errors.Is(err, service.ErrDurationLocked):
		response.Fail(c, http.StatusConflict, response.ErrFormHasAttempts)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// List godoc
// GET /api/v1/manager/forms?page=&per_page=
func (h *FormHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	forms, pagination, err := h.formService.List(c.Request.Context(), claims.ManagerID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"forms": forms}, pagination)
}

// Create godoc
// POST /api/v1/manager/forms
// Creates a form as INACTIVE and provisions its per-form storage.
func (h *FormHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateFormRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.formService.Create(c.Request.Context(), claims.ManagerID, req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"form": form})
}

// Get godoc
// GET /api/v1/manager/forms/:form_id
func (h *FormHandler) Get(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	form, err := h.formService.GetOwned(c.Request.Context(), formID, managerID)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"form": form})
}

// Update godoc
// PUT /api/v1/manager/forms/:form_id
// Duration changes are rejected once attempts exist.
func (h *FormHandler) Update(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	var req model.UpdateFormRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.formService.Update(c.Request.Context(), formID, managerID, req)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"form": form})
}

// Clone godoc
// POST /api/v1/manager/forms/:form_id/clone {label}
// Copies the form definition and fields; roster and attempts start empty.
func (h *FormHandler) Clone(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	var req struct {
		Label string `json:"label" binding:"required,min=3,max=255"`
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	clone, err := h.formService.Clone(c.Request.Context(), formID, managerID, req.Label)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"form": clone})
}

// Activate godoc
// POST /api/v1/manager/forms/:form_id/activate
func (h *FormHandler) Activate(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	if err := h.formService.Activate(c.Request.Context(), formID, managerID); err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Deactivate godoc
// POST /api/v1/manager/forms/:form_id/deactivate
// Soft: blocks new logins, lets in-flight attempts finish.
func (h *FormHandler) Deactivate(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	if err := h.formService.Deactivate(c.Request.Context(), formID, managerID); err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Delete godoc
// DELETE /api/v1/manager/forms/:form_id
// Cascades: fields, roster and attempts are removed with the form.
func (h *FormHandler) Delete(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	if err := h.formService.Delete(c.Request.Context(), formID, managerID); err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListSubmissions godoc
// GET /api/v1/manager/forms/:form_id/submissions?page=&per_page=
func (h *FormHandler) ListSubmissions(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	attempts, pagination, err := h.formService.ListSubmissions(c.Request.Context(), formID, managerID, page, perPage)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": attempts}, pagination)
}

// Review godoc
// PUT /api/v1/manager/forms/:form_id/submissions/:email/review {score, remarks}
func (h *FormHandler) Review(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	email := c.Param("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.formService.Review(c.Request.Context(), formID, managerID, email, req); err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
