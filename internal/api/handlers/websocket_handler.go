package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/council"
	"github.com/agent-council/backend/internal/storage/models"
	"github.com/agent-council/backend/pkg/logger"
)

type WebSocketHandler struct {
	orchestrator *council.Orchestrator
	hub          *council.EventHub
}

func NewWebSocketHandler(orchestrator *council.Orchestrator, hub *council.EventHub) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
		hub:          hub,
	}
}

// HandleConnection streams one run's status changes to the client. The
// current status is sent immediately, then every transition as it happens.
// The connection closes once the run reaches a terminal state.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	runID := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("run_id", runID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("run_id", runID))
	}()

	events, cancel := h.hub.Subscribe(runID)
	defer cancel()

	detail, err := h.orchestrator.GetRunDetail(runID)
	if err != nil {
		if errors.Is(err, council.ErrRunNotFound) {
			h.sendError(c, "Run not found")
		} else {
			logger.Error("Failed to load run for stream", zap.Error(err))
			h.sendError(c, "Failed to load run")
		}
		return
	}

	if err := h.sendStatus(c, runID, detail.Run.Status, detail.Run.Error, time.Now()); err != nil {
		return
	}
	if detail.Run.Status.Terminal() {
		return
	}

	// Reads are discarded; they only tell us when the client goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			if err := h.sendStatus(c, evt.RunID, evt.Status, evt.Error, evt.At); err != nil {
				logger.Error("Failed to write status event", zap.Error(err))
				return
			}
			if evt.Status.Terminal() {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *WebSocketHandler) sendStatus(c *websocket.Conn, runID string, status models.RunStatus, errMsg string, at time.Time) error {
	msg := map[string]interface{}{
		"type":   "status",
		"run_id": runID,
		"status": status,
		"at":     at.UTC().Format(time.RFC3339),
	}
	if errMsg != "" {
		msg["error"] = errMsg
	}
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
