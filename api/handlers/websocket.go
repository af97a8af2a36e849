package handlers

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/roomchat/roomchat/internal/devserver"
)

// WebSocketHandler attaches chat clients to the dev server.
type WebSocketHandler struct {
	wsHandler *devserver.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *devserver.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
	}
}

// Attach handles GET /ws - upgrades to a chat connection.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader already replied with an HTTP error.
		log.Printf("Failed to attach client: %v", err)
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Attach)
}
