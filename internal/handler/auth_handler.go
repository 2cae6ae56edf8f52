package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Lookup surfaces the auth endpoints need. Satisfied by the concrete
// services; narrowed to interfaces so the login flows are testable without
// a database.
type managerDirectory interface {
	GetByID(ctx context.Context, id int) (*model.Manager, error)
	GetByEmail(ctx context.Context, email string) (*model.Manager, error)
}

type rosterDirectory interface {
	GetForLogin(ctx context.Context, formID uuid.UUID, email string) (*model.RosterEntry, error)
}

type formDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*model.AssessmentForm, error)
}

type attemptDirectory interface {
	Get(ctx context.Context, formID uuid.UUID, email string) (*model.CandidateAttempt, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	cfg            *config.Config
	authService    *service.AuthService
	managerService managerDirectory
	rosterService  rosterDirectory
	formService    formDirectory
	attemptService attemptDirectory
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	cfg *config.Config,
	authService *service.AuthService,
	managerService managerDirectory,
	rosterService rosterDirectory,
	formService formDirectory,
	attemptService attemptDirectory,
) *AuthHandler {
	return &AuthHandler{
		cfg:            cfg,
		authService:    authService,
		managerService: managerService,
		rosterService:  rosterService,
		formService:    formService,
		attemptService: attemptService,
	}
}

// CandidateLogin godoc
// POST /api/v1/auth/candidate/login
// Verifies the candidate against the form's roster and issues a form-scoped
// token in an HTTP-only cookie. Rejected once the attempt is submitted.
func (h *AuthHandler) CandidateLogin(c *gin.Context) {
	var req model.CandidateLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.formService.Get(c.Request.Context(), req.FormID)
	if err != nil || form.Status != model.FormStatusActive {
		response.Fail(c, http.StatusForbidden, response.ErrFormNotAvailable)
		return
	}

	entry, err := h.rosterService.GetForLogin(c.Request.Context(), req.FormID, req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckSharedSecret(entry.Mobile, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	// A submitted attempt is terminal; no further sessions for it.
	attempt, err := h.attemptService.Get(c.Request.Context(), req.FormID, req.Email)
	if err == nil && attempt.Status == model.AttemptStatusSubmitted {
		response.Fail(c, http.StatusForbidden, response.ErrAlreadySubmitted)
		return
	}
	if err != nil && !errors.Is(err, service.ErrAttemptNotFound) {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	token, err := h.authService.GenerateCandidateToken(c.Request.Context(), req.FormID, req.Email)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.setCandidateCookie(c, token, int(h.cfg.CandidateJWTExpiry.Seconds()))

	// The token travels both ways: the cookie serves browser clients, the
	// body serves clients that authenticate with a bearer header.
	response.Success(c, http.StatusOK, gin.H{
		"access_token": token,
		"candidate": gin.H{
			"name":    entry.Name,
			"email":   entry.Email,
			"form_id": entry.FormID,
		},
	})
}

// CandidateLogout godoc
// POST /api/v1/auth/candidate/logout
// Revokes the candidate session and clears the cookie.
func (h *AuthHandler) CandidateLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.RevokeCandidateSession(c.Request.Context(), claims.FormID, claims.Email); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.setCandidateCookie(c, "", -1)
	response.Success(c, http.StatusOK, gin.H{})
}

// GetCandidateProfile godoc
// GET /api/v1/auth/candidate/me
// Returns the roster identity of the authenticated candidate.
func (h *AuthHandler) GetCandidateProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	formID, err := uuid.Parse(claims.FormID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	entry, err := h.rosterService.GetForLogin(c.Request.Context(), formID, claims.Email)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"candidate": entry})
}

// ManagerLogin godoc
// POST /api/v1/auth/manager/login
// Validates email + password, returns a bearer JWT.
func (h *AuthHandler) ManagerLogin(c *gin.Context) {
	var req model.ManagerLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	manager, err := h.managerService.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(manager.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateManagerToken(manager.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"manager": gin.H{
			"id":    manager.ID,
			"email": manager.Email,
			"name":  manager.Name,
		},
	})
}

// GetManagerProfile godoc
// GET /api/v1/auth/manager/me
// Returns the profile of the authenticated manager.
func (h *AuthHandler) GetManagerProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	manager, err := h.managerService.GetByID(c.Request.Context(), claims.ManagerID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"manager": gin.H{
			"id":    manager.ID,
			"email": manager.Email,
			"name":  manager.Name,
		},
	})
}

func (h *AuthHandler) setCandidateCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CandidateCookieName, token, maxAge, "/", "", h.cfg.GinMode == "release", true)
}
