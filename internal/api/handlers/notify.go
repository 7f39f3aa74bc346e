package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workspace-service/pkg/protocol"
	"workspace-service/pkg/response"
)

// EventSink accepts externally produced events for fan-out. Backed by the
// kafka producer in clustered deployments or the hub directly otherwise.
type EventSink interface {
	PublishEvent(event *protocol.WorkspaceEvent) error
	PublishUserEvent(userID string, event *protocol.WorkspaceEvent) error
}

// NotifyHandler lets collaborating backend services inject workspace events
// without talking to the broker themselves.
type NotifyHandler struct {
	sink EventSink
}

func NewNotifyHandler(sink EventSink) *NotifyHandler {
	return &NotifyHandler{sink: sink}
}

type notifyRequest struct {
	UserID string                  `json:"userId"`
	Event  protocol.WorkspaceEvent `json:"event" binding:"required"`
}

// HandleNotify serves POST /api/v1/notify. When userId is set the event is
// routed to that user's connections; otherwise to the event's workspace.
func (h *NotifyHandler) HandleNotify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, err.Error())
		return
	}
	if !req.Event.Type.IsValid() {
		response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, "unknown event type")
		return
	}

	var err error
	if req.UserID != "" {
		err = h.sink.PublishUserEvent(req.UserID, &req.Event)
	} else {
		if req.Event.WorkspaceID == "" {
			response.Error(c, http.StatusBadRequest, response.CodeParamInvalid, "workspaceId or userId is required")
			return
		}
		err = h.sink.PublishEvent(&req.Event)
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, err.Error())
		return
	}
	response.OK(c, nil)
}
