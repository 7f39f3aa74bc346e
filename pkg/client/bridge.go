package client

import (
	"encoding/json"

	"log/slog"

	"workspace-service/pkg/presence"
	"workspace-service/pkg/protocol"
)

// Callbacks is the application-facing listener surface. Every field is
// optional; a missing callback means the event is decoded but has no effect
// beyond internal presence updates.
type Callbacks struct {
	OnResourceCreated func(resourceID string, resourceType protocol.ResourceType, data json.RawMessage)
	OnResourceUpdated func(resourceID string, resourceType protocol.ResourceType, data json.RawMessage)
	OnResourceDeleted func(resourceID string, resourceType protocol.ResourceType, data json.RawMessage)

	OnWorkspaceCreated func(workspaceID string, data json.RawMessage)
	OnWorkspaceUpdated func(workspaceID string, data json.RawMessage)
	OnWorkspaceDeleted func(workspaceID string, data json.RawMessage)

	// OnWorkspacesChanged signals that the user's workspace list should be
	// refetched.
	OnWorkspacesChanged func(data json.RawMessage)

	// OnConnectionChange reports the derived isConnected signal.
	OnConnectionChange func(connected bool)
}

// bridge decodes inbound workspace events into presence store updates and
// application callbacks. It is the single dispatch point; unrecognized event
// types are ignored, never fatal.
type bridge struct {
	store     *presence.Store
	callbacks Callbacks
}

func (b *bridge) handle(event *protocol.WorkspaceEvent) {
	switch event.Type {
	case protocol.EventTypeResourceCreated:
		if b.callbacks.OnResourceCreated != nil && event.ResourceID != "" && event.ResourceType != "" {
			b.callbacks.OnResourceCreated(event.ResourceID, event.ResourceType, event.Data)
		}

	case protocol.EventTypeResourceUpdated:
		if b.callbacks.OnResourceUpdated != nil && event.ResourceID != "" && event.ResourceType != "" {
			b.callbacks.OnResourceUpdated(event.ResourceID, event.ResourceType, event.Data)
		}

	case protocol.EventTypeResourceDeleted:
		if b.callbacks.OnResourceDeleted != nil {
			b.callbacks.OnResourceDeleted(event.ResourceID, event.ResourceType, event.Data)
		}
		if event.ResourceID != "" {
			b.store.ApplyResourceDeleted(event.ResourceID)
		}

	case protocol.EventTypePresenceSync:
		var entries []protocol.ResourcePresence
		if err := json.Unmarshal(event.Data, &entries); err != nil {
			slog.Error("Failed to decode presence_sync payload", "error", err)
			return
		}
		b.store.ApplyFullSync(entries)

	case protocol.EventTypePresenceJoin:
		var entry protocol.ResourcePresence
		if err := json.Unmarshal(event.Data, &entry); err != nil {
			slog.Error("Failed to decode presence_join payload", "error", err)
			return
		}
		b.store.ApplyJoin(entry)

	case protocol.EventTypePresenceLeave:
		var payload struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			slog.Error("Failed to decode presence_leave payload", "error", err)
			return
		}
		b.store.ApplyLeave(event.ResourceID, payload.UserID)

	case protocol.EventTypeWorkspaceCreated:
		if b.callbacks.OnWorkspaceCreated != nil {
			b.callbacks.OnWorkspaceCreated(event.WorkspaceID, event.Data)
		}

	case protocol.EventTypeWorkspaceUpdated:
		if b.callbacks.OnWorkspaceUpdated != nil {
			b.callbacks.OnWorkspaceUpdated(event.WorkspaceID, event.Data)
		}

	case protocol.EventTypeWorkspaceDeleted:
		if b.callbacks.OnWorkspaceDeleted != nil {
			b.callbacks.OnWorkspaceDeleted(event.WorkspaceID, event.Data)
		}

	case protocol.EventTypeWorkspacesChanged:
		if b.callbacks.OnWorkspacesChanged != nil {
			b.callbacks.OnWorkspacesChanged(event.Data)
		}

	default:
		slog.Debug("Ignoring unknown event type", "type", event.Type)
	}
}
