package router

import (
	"net/http"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/handler"
	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Candidate *handler.CandidateHandler
	Form      *handler.FormHandler
	Field     *handler.FieldHandler
	Roster    *handler.RosterHandler
	Monitor   *handler.MonitorHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to the configured origins, or allow all in dev. Credentials
	// must be allowed for the candidate cookie to travel.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for login routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/candidate/login", authLimiter.Middleware(), handlers.Auth.CandidateLogin)
		auth.POST("/manager/login", authLimiter.Middleware(), handlers.Auth.ManagerLogin)

		auth.POST("/candidate/logout", middleware.RequireCandidateJWT(authService), handlers.Auth.CandidateLogout)
		auth.GET("/candidate/me", middleware.RequireCandidateJWT(authService), handlers.Auth.GetCandidateProfile)
		auth.GET("/manager/me", middleware.RequireManagerJWT(authService), handlers.Auth.GetManagerProfile)
	}

	// ─── 2. Candidate Group (form-scoped JWT) ──────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(middleware.RequireCandidateJWT(authService))
	{
		candidateAPI.GET("/forms/:form_id", handlers.Candidate.GetForm)
		candidateAPI.GET("/forms/:form_id/fields", handlers.Candidate.GetFields)
		candidateAPI.POST("/forms/:form_id/attempts", handlers.Candidate.StartAttempt)
		candidateAPI.GET("/forms/:form_id/attempts/current", handlers.Candidate.GetAttemptState)
		candidateAPI.POST("/forms/:form_id/warnings", handlers.Candidate.RecordWarning)
		candidateAPI.PUT("/forms/:form_id/submission", handlers.Candidate.FinalizeAttempt)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/candidate/forms/:form_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Manager Group ──────────────────────────────────────────────
	managerAPI := router.Group("/api/v1/manager")
	managerAPI.Use(middleware.RequireManagerJWT(authService))
	{
		managerAPI.GET("/forms", handlers.Form.List)
		managerAPI.POST("/forms", handlers.Form.Create)
		managerAPI.GET("/forms/:form_id", handlers.Form.Get)
		managerAPI.PUT("/forms/:form_id", handlers.Form.Update)
		managerAPI.DELETE("/forms/:form_id", handlers.Form.Delete)
		managerAPI.POST("/forms/:form_id/clone", handlers.Form.Clone)
		managerAPI.POST("/forms/:form_id/activate", handlers.Form.Activate)
		managerAPI.POST("/forms/:form_id/deactivate", handlers.Form.Deactivate)

		managerAPI.GET("/forms/:form_id/fields", handlers.Field.List)
		managerAPI.PUT("/forms/:form_id/fields", handlers.Field.Replace)

		managerAPI.GET("/forms/:form_id/roster", handlers.Roster.List)
		managerAPI.POST("/forms/:form_id/roster", handlers.Roster.Select)
		managerAPI.DELETE("/forms/:form_id/roster/:email", handlers.Roster.Remove)

		managerAPI.GET("/forms/:form_id/submissions", handlers.Form.ListSubmissions)
		managerAPI.PUT("/forms/:form_id/submissions/:email/review", handlers.Form.Review)

		managerAPI.GET("/forms/:form_id/monitor", handlers.Monitor.MonitorFormSSE)
		managerAPI.GET("/forms/:form_id/monitor/:email/events", handlers.Monitor.GetEventBreakdown)
	}

	return router
}
