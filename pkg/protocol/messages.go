package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType represents the type of a client-to-server message
type MessageType string

const (
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypePresenceJoin  MessageType = "presence_join"
	MessageTypePresenceLeave MessageType = "presence_leave"
)

// String returns the string representation of the MessageType
func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a valid enum value
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeSubscribe, MessageTypePresenceJoin, MessageTypePresenceLeave:
		return true
	default:
		return false
	}
}

// ClientMessage is the envelope for every client-to-server frame. Fields beyond
// Type are populated depending on the message type.
type ClientMessage struct {
	Type         MessageType  `json:"type"`
	WorkspaceID  string       `json:"workspaceId,omitempty"`
	ResourceID   string       `json:"resourceId,omitempty"`
	ResourceType ResourceType `json:"resourceType,omitempty"`
}

// Validate validates the message structure and per-type required fields
func (m *ClientMessage) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid message type: %s", m.Type)
	}
	switch m.Type {
	case MessageTypeSubscribe:
		if m.WorkspaceID == "" {
			return fmt.Errorf("subscribe requires workspaceId")
		}
	case MessageTypePresenceJoin:
		if m.ResourceID == "" {
			return fmt.Errorf("presence_join requires resourceId")
		}
	}
	return nil
}

// Encode serializes the message to a JSON text frame
func (m *ClientMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a JSON text frame into a ClientMessage
func DecodeMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	return &msg, nil
}

// Message constructors

// NewSubscribeMessage declares interest in one workspace's broadcast stream
func NewSubscribeMessage(workspaceID string) *ClientMessage {
	return &ClientMessage{Type: MessageTypeSubscribe, WorkspaceID: workspaceID}
}

// NewPresenceJoinMessage announces the user started viewing a resource
func NewPresenceJoinMessage(resourceID string, resourceType ResourceType) *ClientMessage {
	return &ClientMessage{
		Type:         MessageTypePresenceJoin,
		ResourceID:   resourceID,
		ResourceType: resourceType,
	}
}

// NewPresenceLeaveMessage announces the user stopped viewing its resource
func NewPresenceLeaveMessage() *ClientMessage {
	return &ClientMessage{Type: MessageTypePresenceLeave}
}
