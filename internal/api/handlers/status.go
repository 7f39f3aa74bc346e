package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workspace-service/internal/services"
	ws "workspace-service/internal/websocket"
	"workspace-service/pkg/response"
)

// StatusHandler answers online status and presence queries. Online status
// comes from redis so it covers the whole cluster; resource presence comes
// from the local hub.
type StatusHandler struct {
	hub          *ws.Hub
	redisService *services.RedisService
}

func NewStatusHandler(hub *ws.Hub, redisService *services.RedisService) *StatusHandler {
	return &StatusHandler{hub: hub, redisService: redisService}
}

// GetOnlineUsers serves GET /api/v1/users/online.
func (h *StatusHandler) GetOnlineUsers(c *gin.Context) {
	users, err := h.redisService.GetOnlineUsers(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, gin.H{"users": users})
}

// GetUserStatus serves GET /api/v1/users/:id/status.
func (h *StatusHandler) GetUserStatus(c *gin.Context) {
	userID := c.Param("id")
	online, err := h.redisService.IsUserOnline(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, gin.H{"userId": userID, "online": online})
}

// GetResourcePresence serves GET /api/v1/presence/:resourceId.
func (h *StatusHandler) GetResourcePresence(c *gin.Context) {
	resourceID := c.Param("resourceId")
	response.OK(c, gin.H{"resourceId": resourceID, "presence": h.hub.Presence(resourceID)})
}
