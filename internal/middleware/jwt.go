package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"

	// CandidateCookieName is the HTTP-only cookie carrying the candidate token.
	CandidateCookieName = "candidate_token"
)

// RequireCandidateJWT validates a candidate JWT from the Authorization
// header or the HTTP-only cookie, then checks the session registry so a
// superseded login stops working immediately. Routes carrying a :form_id
// param are additionally scoped: a token for one form opens no other.
func RequireCandidateJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, authService)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != service.TokenTypeCandidate {
			response.AbortFail(c, http.StatusForbidden, response.ErrCandidateAccessOnly)
			return
		}

		if formID := c.Param("form_id"); formID != "" && formID != claims.FormID {
			response.AbortFail(c, http.StatusForbidden, response.ErrWrongForm)
			return
		}

		if err := authService.ValidateCandidateSession(c.Request.Context(), claims.FormID, claims.Email, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireManagerJWT validates a manager JWT from the Authorization header.
func RequireManagerJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, authService)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != service.TokenTypeManager {
			response.AbortFail(c, http.StatusForbidden, response.ErrManagerAccessOnly)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireCandidateWSAuth validates a candidate JWT from the query param
// ?token=... for WebSocket upgrade requests, which cannot send headers.
func RequireCandidateWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			if cookie, err := c.Cookie(CandidateCookieName); err == nil {
				tokenStr = cookie
			}
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != service.TokenTypeCandidate {
			response.AbortFail(c, http.StatusForbidden, response.ErrCandidateAccessOnly)
			return
		}

		if formID := c.Param("form_id"); formID != "" && formID != claims.FormID {
			response.AbortFail(c, http.StatusForbidden, response.ErrWrongForm)
			return
		}

		if err := authService.ValidateCandidateSession(c.Request.Context(), claims.FormID, claims.Email, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractAndValidateClaims(c *gin.Context, authService *service.AuthService) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	// Candidate clients authenticate with the HTTP-only cookie.
	if tokenStr == "" {
		if cookie, err := c.Cookie(CandidateCookieName); err == nil {
			tokenStr = cookie
		}
	}

	// Fallback for EventSource (SSE) which cannot send headers.
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, fmt.Errorf("authorization header, cookie or token query required")
	}

	return authService.ValidateToken(tokenStr)
}
