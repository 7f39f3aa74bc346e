package websocket

import (
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		allowedOrigins := []string{
			"http://localhost:3000",
			"https://localhost:3000",
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1:3000",
			"http://127.0.0.1",
		}
		if customOrigins := os.Getenv("ALLOWED_ORIGINS"); customOrigins != "" {
			for _, customOrigin := range strings.Split(customOrigins, ",") {
				allowedOrigins = append(allowedOrigins, strings.TrimSpace(customOrigin))
			}
		}
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				return true
			}
		}
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	},
}

// ServeWS upgrades the HTTP request, registers the connection with the hub and
// starts its pumps. Identity must already be verified by the handshake layer.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "userID", identity.UserID, "error", err)
		return
	}

	client := NewClient(hub, conn, identity)
	slog.Info("New WebSocket connection established", "clientID", client.id, "userID", identity.UserID)

	select {
	case hub.register <- client:
	case <-time.After(5 * time.Second):
		slog.Error("Timeout sending registration request", "clientID", client.id, "userID", identity.UserID)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
