package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tatamiapp/tatami-backend/internal/sse"
)

type EventsHandler struct {
	hub *sse.Hub
}

func NewEventsHandler(hub *sse.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// GET /api/events?channel=lesson:<run-id>
func (h *EventsHandler) Stream(c *gin.Context) {
	channel := strings.TrimSpace(c.Query("channel"))
	if channel == "" {
		RespondError(c, http.StatusBadRequest, "missing_channel", errors.New("channel required"))
		return
	}

	client := h.hub.NewClient()
	h.hub.Subscribe(client, channel)
	defer h.hub.RemoveClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
