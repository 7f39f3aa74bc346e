package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	ws "workspace-service/internal/websocket"
)

// WebSocketHandler upgrades handshakes and hands the connection to the hub.
type WebSocketHandler struct {
	hub *ws.Hub
}

func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket serves GET /ws. The identity middleware has already
// validated the caller and stored the identity on the context.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	identity := ws.Identity{
		UserID:    c.GetString("user_id"),
		UserName:  c.GetString("user_name"),
		UserColor: c.GetString("user_color"),
	}
	if identity.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	slog.Debug("WebSocket handshake accepted", "userID", identity.UserID)
	ws.ServeWS(h.hub, c.Writer, c.Request, identity)
}
