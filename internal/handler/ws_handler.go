package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/service"
	ws "github.com/assessly/assessly-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the candidate autosave WebSocket stream.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/candidate/forms/:form_id/stream
// Upgrades to WebSocket for low-latency answer autosave during an attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	formID, err := uuid.Parse(c.Param("form_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	email := claims.Email

	// Stream only for an open attempt.
	attempt, err := h.attemptService.Get(c.Request.Context(), formID, email)
	if err != nil || attempt.Status == model.AttemptStatusSubmitted {
		ws.WriteError(conn, "no open attempt for this form")
		return
	}

	wsLog := h.log.With().
		Str("email", email).
		Str("form_id", formID.String()).
		Logger()

	wsLog.Info().Msg("candidate connected")

	for {
		var msg ws.AutosaveRequest
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			} else {
				wsLog.Debug().Msg("connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(c, conn, formID, email, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave saves one field answer to Redis and queues it for
// persistence.
func (h *WSHandler) handleAutosave(c *gin.Context, conn *websocket.Conn, formID uuid.UUID, email string, msg *ws.AutosaveRequest) {
	if msg.FieldID == "" {
		ws.WriteError(conn, "field_id is required")
		return
	}

	// Field IDs are UUIDs; reject anything else before it touches a Redis key.
	if _, err := uuid.Parse(msg.FieldID); err != nil {
		ws.WriteError(conn, "invalid field_id format")
		return
	}

	if err := h.attemptService.SaveDraftAnswer(c.Request.Context(), formID, email, msg.FieldID, msg.Answer); err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			ws.WriteError(conn, "no open attempt")
			return
		}
		h.log.Error().Err(err).Str("email", email).Msg("autosave failed")
		ws.WriteError(conn, "save failed")
		return
	}

	ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}
