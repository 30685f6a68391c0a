package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amfajardoo/project-code-editor/internal/logger"
	"github.com/amfajardoo/project-code-editor/internal/relay"
)

// WebSocketHandler admits collaborative editing connections. The room name
// is carried in the request path, so the handler is mounted as the
// router's fallback: every path that is not part of the REST surface is a
// room target.
type WebSocketHandler struct {
	relayHandler *relay.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(relayHandler *relay.Handler) *WebSocketHandler {
	return &WebSocketHandler{relayHandler: relayHandler}
}

// Attach upgrades the request and hands the connection to the relay.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if err := h.relayHandler.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader already wrote the HTTP error response.
		logger.Warn("websocket upgrade failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
}
