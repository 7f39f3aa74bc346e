package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of a server-to-client workspace event using a
// custom enum type for better type safety
type EventType string

// Workspace event types pushed by the dispatcher
const (
	// Resource lifecycle events
	EventTypeResourceCreated EventType = "resource_created"
	EventTypeResourceUpdated EventType = "resource_updated"
	EventTypeResourceDeleted EventType = "resource_deleted"

	// Workspace lifecycle events
	EventTypeWorkspaceCreated EventType = "workspace_created"
	EventTypeWorkspaceUpdated EventType = "workspace_updated"
	EventTypeWorkspaceDeleted EventType = "workspace_deleted"

	// User-scoped notification that the user's workspace list changed
	EventTypeWorkspacesChanged EventType = "workspaces_changed"

	// Presence events
	EventTypePresenceSync  EventType = "presence_sync"
	EventTypePresenceJoin  EventType = "presence_join"
	EventTypePresenceLeave EventType = "presence_leave"
)

// String returns the string representation of the EventType
func (et EventType) String() string {
	return string(et)
}

// IsValid checks if the EventType is a valid enum value
func (et EventType) IsValid() bool {
	switch et {
	case EventTypeResourceCreated, EventTypeResourceUpdated, EventTypeResourceDeleted,
		EventTypeWorkspaceCreated, EventTypeWorkspaceUpdated, EventTypeWorkspaceDeleted,
		EventTypeWorkspacesChanged,
		EventTypePresenceSync, EventTypePresenceJoin, EventTypePresenceLeave:
		return true
	default:
		return false
	}
}

// ResourceType identifies the kind of workspace resource that supports presence
type ResourceType string

const (
	ResourceTypeDocument ResourceType = "document"
	ResourceTypeChatRoom ResourceType = "chatroom"
	ResourceTypeIdea     ResourceType = "idea"
	ResourceTypeThing    ResourceType = "thing"
)

// IsValid checks if the ResourceType is a valid enum value
func (rt ResourceType) IsValid() bool {
	switch rt {
	case ResourceTypeDocument, ResourceTypeChatRoom, ResourceTypeIdea, ResourceTypeThing:
		return true
	default:
		return false
	}
}

// ResourcePresence is one user actively viewing one resource
type ResourcePresence struct {
	ResourceID   string       `json:"resourceId"`
	ResourceType ResourceType `json:"resourceType,omitempty"`
	UserID       string       `json:"userId"`
	UserName     string       `json:"userName"`
	UserColor    string       `json:"userColor"`
	JoinedAt     time.Time    `json:"joinedAt"`
}

// WorkspaceEvent is the tagged union carried on the wire from server to client.
// Data is opaque to this layer; its shape is owned by the service that produced
// the event.
type WorkspaceEvent struct {
	Type         EventType       `json:"type"`
	WorkspaceID  string          `json:"workspaceId,omitempty"`
	ResourceID   string          `json:"resourceId,omitempty"`
	ResourceType ResourceType    `json:"resourceType,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Validate validates the event structure and type
func (e *WorkspaceEvent) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid event type: %s", e.Type)
	}
	return nil
}

// Encode serializes the event to a JSON text frame
func (e *WorkspaceEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a JSON text frame into a WorkspaceEvent
func DecodeEvent(data []byte) (*WorkspaceEvent, error) {
	var event WorkspaceEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode workspace event: %w", err)
	}
	return &event, nil
}

// Event constructors for type safety and consistency

// NewPresenceJoinEvent builds the broadcast sent when a user joins a resource
func NewPresenceJoinEvent(workspaceID string, entry ResourcePresence) *WorkspaceEvent {
	data, _ := json.Marshal(entry)
	return &WorkspaceEvent{
		Type:         EventTypePresenceJoin,
		WorkspaceID:  workspaceID,
		ResourceID:   entry.ResourceID,
		ResourceType: entry.ResourceType,
		Data:         data,
	}
}

// NewPresenceLeaveEvent builds the broadcast sent when a user leaves a resource
func NewPresenceLeaveEvent(workspaceID, resourceID, userID string) *WorkspaceEvent {
	data, _ := json.Marshal(map[string]string{"userId": userID})
	return &WorkspaceEvent{
		Type:        EventTypePresenceLeave,
		WorkspaceID: workspaceID,
		ResourceID:  resourceID,
		Data:        data,
	}
}

// NewPresenceSyncEvent builds the full snapshot sent on (re)subscribe
func NewPresenceSyncEvent(workspaceID string, entries []ResourcePresence) *WorkspaceEvent {
	if entries == nil {
		entries = []ResourcePresence{}
	}
	data, _ := json.Marshal(entries)
	return &WorkspaceEvent{
		Type:        EventTypePresenceSync,
		WorkspaceID: workspaceID,
		Data:        data,
	}
}

// NewResourceEvent builds a resource lifecycle event
func NewResourceEvent(eventType EventType, workspaceID, resourceID string, resourceType ResourceType, data json.RawMessage) *WorkspaceEvent {
	return &WorkspaceEvent{
		Type:         eventType,
		WorkspaceID:  workspaceID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Data:         data,
	}
}

// NewWorkspaceLifecycleEvent builds a workspace lifecycle event
func NewWorkspaceLifecycleEvent(eventType EventType, workspaceID string, data json.RawMessage) *WorkspaceEvent {
	return &WorkspaceEvent{
		Type:        eventType,
		WorkspaceID: workspaceID,
		Data:        data,
	}
}

// NewWorkspacesChangedEvent builds the user-scoped list-changed notification
func NewWorkspacesChangedEvent(data json.RawMessage) *WorkspaceEvent {
	return &WorkspaceEvent{
		Type: EventTypeWorkspacesChanged,
		Data: data,
	}
}
