package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams the live proctoring dashboard over SSE.
type MonitorHandler struct {
	formService    *service.FormService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(formService *service.FormService, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		formService:    formService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorFormSSE godoc
// GET /api/v1/manager/forms/:form_id/monitor
// Sends an initial snapshot, then relays live events off the form's Redis
// channel, with periodic aggregate refreshes and keep-alive pings.
func (h *MonitorHandler) MonitorFormSSE(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	form, err := h.formService.GetOwned(c.Request.Context(), formID, managerID)
	if err != nil {
		failFormError(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, formID, form.Label, form.DurationMinutes)

	pubsub := h.monitorService.Subscribe(reqCtx, formID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("form_id", formID.String()).Msg("manager attached to live monitor")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("form_id", formID.String()).Msg("manager detached from live monitor")
			return

		case msg := <-ch:
			// Relay raw JSON straight through.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx, formID, "", 0)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot fetches the aggregate state under a timeout and writes one
// SSE event. Form metadata rides along on the initial event only.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, formID uuid.UUID, label string, durationMinutes int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snapshot, err := h.monitorService.GetSnapshot(ctx, formID)
	if err != nil {
		h.log.Warn().Err(err).Str("form_id", formID.String()).Msg("failed to build monitor snapshot")
		return
	}

	totalOpen := 0
	totalSubmitted := 0
	for _, row := range snapshot.Attempts {
		if row.FinishedAt != nil {
			totalSubmitted++
		} else {
			totalOpen++
		}
	}

	event := map[string]interface{}{
		"type": "snapshot",
		"stats": map[string]interface{}{
			"total_started":    len(snapshot.Attempts),
			"total_open":       totalOpen,
			"total_submitted":  totalSubmitted,
			"total_violations": snapshot.TotalViolations,
		},
		"attempts":         snapshot.Attempts,
		"violation_counts": snapshot.ViolationCounts,
	}
	if label != "" {
		event["form"] = map[string]interface{}{
			"id":       formID.String(),
			"label":    label,
			"duration": durationMinutes,
		}
	}

	c.SSEvent("message", event)
	c.Writer.Flush()
}

// GetEventBreakdown godoc
// GET /api/v1/manager/forms/:form_id/monitor/:email/events
// Per-event-type counts for one candidate.
func (h *MonitorHandler) GetEventBreakdown(c *gin.Context) {
	formID, managerID, ok := managerScope(c)
	if !ok {
		return
	}

	if _, err := h.formService.GetOwned(c.Request.Context(), formID, managerID); err != nil {
		failFormError(c, err)
		return
	}

	email := c.Param("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	counts, err := h.monitorService.GetEventBreakdown(c.Request.Context(), formID, email)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": counts})
}
