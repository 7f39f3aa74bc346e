package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClientMessageValidate(t *testing.T) {
	t.Run("SubscribeRequiresWorkspace", func(t *testing.T) {
		msg := &ClientMessage{Type: MessageTypeSubscribe}
		if err := msg.Validate(); err == nil {
			t.Fatal("expected error for subscribe without workspaceId")
		}

		msg.WorkspaceID = "ws-1"
		if err := msg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("PresenceJoinRequiresResource", func(t *testing.T) {
		msg := &ClientMessage{Type: MessageTypePresenceJoin}
		if err := msg.Validate(); err == nil {
			t.Fatal("expected error for presence_join without resourceId")
		}

		msg.ResourceID = "doc-1"
		if err := msg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("UnknownTypeRejected", func(t *testing.T) {
		msg := &ClientMessage{Type: "shout"}
		if err := msg.Validate(); err == nil {
			t.Fatal("expected error for unknown message type")
		}
	})
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPresenceLeaveEventCarriesUserID(t *testing.T) {
	event := NewPresenceLeaveEvent("ws-1", "doc-1", "user-9")

	if event.Type != EventTypePresenceLeave {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.WorkspaceID != "ws-1" || event.ResourceID != "doc-1" {
		t.Fatalf("unexpected routing fields: %+v", event)
	}

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.UserID != "user-9" {
		t.Fatalf("got userId %q, want user-9", payload.UserID)
	}
}

func TestPresenceSyncEventRoundTrip(t *testing.T) {
	entries := []ResourcePresence{
		{ResourceID: "doc-1", ResourceType: ResourceTypeDocument, UserID: "u1", UserName: "Ada", JoinedAt: time.Now().UTC()},
		{ResourceID: "doc-1", ResourceType: ResourceTypeDocument, UserID: "u2", UserName: "Lin", JoinedAt: time.Now().UTC()},
	}
	event := NewPresenceSyncEvent("ws-1", entries)

	raw, err := event.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []ResourcePresence
	if err := json.Unmarshal(decoded.Data, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].UserID != "u1" || got[1].UserName != "Lin" {
		t.Fatalf("unexpected sync payload: %+v", got)
	}
}

func TestEventTypeIsValid(t *testing.T) {
	valid := []EventType{
		EventTypeResourceCreated, EventTypeResourceUpdated, EventTypeResourceDeleted,
		EventTypeWorkspaceCreated, EventTypeWorkspaceUpdated, EventTypeWorkspaceDeleted,
		EventTypeWorkspacesChanged,
		EventTypePresenceSync, EventTypePresenceJoin, EventTypePresenceLeave,
	}
	for _, et := range valid {
		if !et.IsValid() {
			t.Errorf("%q should be valid", et)
		}
	}
	if EventType("resource_renamed").IsValid() {
		t.Error("unknown event type should be invalid")
	}
}
