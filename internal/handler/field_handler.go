package handler

import (
	"net/http"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// FieldHandler handles manager-facing field definition endpoints.
type FieldHandler struct {
	fieldService *service.FieldService
}

// NewFieldHandler creates a new FieldHandler.
func NewFieldHandler(fieldService *service.FieldService) *FieldHandler {
	return &FieldHandler{fieldService: fieldService}
}

// List godoc
// GET /api/v1/manager/forms/:form_id/fields
func (h *FieldHandler) List(c *gin.Context) {
	formID, _, ok := managerScope(c)
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

// Replace godoc
// PUT /api/v1/manager/forms/:form_id/fields
// Replaces the full field list in one transaction. Locked once attempts
// exist.
func (h *FieldHandler) Replace(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	var req model.ReplaceFieldsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	fields, err := h.fieldService.ReplaceAll(c.Request.Context(), formID, managerID, req)
	if err != nil {
		failFormError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"fields": fields})
}
