package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"workspace-service/pkg/protocol"
)

func startTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, "test-instance")
	hub.SetGracePeriod(40 * time.Millisecond)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	client := NewClient(hub, nil, Identity{
		UserID:    userID,
		UserName:  "user-" + userID,
		UserColor: "#0af",
	})
	select {
	case hub.register <- client:
	case <-time.After(time.Second):
		t.Fatal("timed out registering client")
	}
	return client
}

func disconnect(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	select {
	case hub.unregister <- client:
	case <-time.After(time.Second):
		t.Fatal("timed out unregistering client")
	}
}

func send(t *testing.T, hub *Hub, client *Client, msg *protocol.ClientMessage) {
	t.Helper()
	select {
	case hub.handleMessage <- &clientMessage{client: client, message: msg}:
	case <-time.After(time.Second):
		t.Fatal("timed out sending message to hub")
	}
}

func recvEvent(t *testing.T, client *Client) *protocol.WorkspaceEvent {
	t.Helper()
	select {
	case frame, ok := <-client.send:
		if !ok {
			t.Fatal("send channel closed while waiting for event")
		}
		event, err := protocol.DecodeEvent(frame)
		if err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

// drainEvents collects every event delivered within the window, tolerating a
// send channel closed by unregistration.
func drainEvents(client *Client, window time.Duration) []*protocol.WorkspaceEvent {
	var events []*protocol.WorkspaceEvent
	deadline := time.After(window)
	for {
		select {
		case frame, ok := <-client.send:
			if !ok {
				return events
			}
			if event, err := protocol.DecodeEvent(frame); err == nil {
				events = append(events, event)
			}
		case <-deadline:
			return events
		}
	}
}

func TestSubscribe(t *testing.T) {
	t.Run("AnswersWithPresenceSync", func(t *testing.T) {
		hub := startTestHub(t)
		client := connect(t, hub, "u1")
		send(t, hub, client, protocol.NewSubscribeMessage("ws-1"))

		event := recvEvent(t, client)
		if event.Type != protocol.EventTypePresenceSync {
			t.Fatalf("expected presence_sync, got %s", event.Type)
		}
		if event.WorkspaceID != "ws-1" {
			t.Errorf("expected workspaceId ws-1, got %s", event.WorkspaceID)
		}
	})

	t.Run("ReplacesPriorSubscription", func(t *testing.T) {
		hub := startTestHub(t)
		client := connect(t, hub, "u1")
		send(t, hub, client, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, client)
		send(t, hub, client, protocol.NewSubscribeMessage("ws-2"))
		recvEvent(t, client)

		if n := hub.SubscriberCount("ws-1"); n != 0 {
			t.Errorf("expected 0 subscribers on ws-1 after resubscribe, got %d", n)
		}
		if n := hub.SubscriberCount("ws-2"); n != 1 {
			t.Errorf("expected 1 subscriber on ws-2, got %d", n)
		}
	})

	t.Run("SyncIncludesExistingPresence", func(t *testing.T) {
		hub := startTestHub(t)
		first := connect(t, hub, "u1")
		send(t, hub, first, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, first)
		send(t, hub, first, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		recvEvent(t, first)

		late := connect(t, hub, "u2")
		send(t, hub, late, protocol.NewSubscribeMessage("ws-1"))

		event := recvEvent(t, late)
		if event.Type != protocol.EventTypePresenceSync {
			t.Fatalf("expected presence_sync, got %s", event.Type)
		}
		var entries []protocol.ResourcePresence
		if err := unmarshalData(event, &entries); err != nil {
			t.Fatalf("failed to decode sync payload: %v", err)
		}
		if len(entries) != 1 || entries[0].UserID != "u1" {
			t.Fatalf("expected sync to carry u1 on doc-1, got %v", entries)
		}
	})
}

func TestPresenceJoin(t *testing.T) {
	t.Run("BroadcastsToAllSubscribersIncludingSender", func(t *testing.T) {
		hub := startTestHub(t)
		alice := connect(t, hub, "u1")
		bob := connect(t, hub, "u2")
		send(t, hub, alice, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, alice)
		send(t, hub, bob, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, bob)

		send(t, hub, alice, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))

		for _, client := range []*Client{alice, bob} {
			event := recvEvent(t, client)
			if event.Type != protocol.EventTypePresenceJoin {
				t.Fatalf("expected presence_join, got %s", event.Type)
			}
			if event.ResourceID != "doc-1" {
				t.Errorf("expected resourceId doc-1, got %s", event.ResourceID)
			}
		}

		occupants := hub.Presence("doc-1")
		if len(occupants) != 1 || occupants[0].UserID != "u1" {
			t.Fatalf("expected exactly u1 on doc-1, got %v", occupants)
		}
	})

	t.Run("DedupsAcrossTabsOfSameUser", func(t *testing.T) {
		hub := startTestHub(t)
		tab1 := connect(t, hub, "u1")
		tab2 := connect(t, hub, "u1")
		for _, tab := range []*Client{tab1, tab2} {
			send(t, hub, tab, protocol.NewSubscribeMessage("ws-1"))
			recvEvent(t, tab)
		}

		send(t, hub, tab1, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		send(t, hub, tab2, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))

		time.Sleep(20 * time.Millisecond)
		occupants := hub.Presence("doc-1")
		if len(occupants) != 1 {
			t.Fatalf("presence must dedup by user, got %d entries", len(occupants))
		}
	})

	t.Run("IgnoredWithoutSubscription", func(t *testing.T) {
		hub := startTestHub(t)
		client := connect(t, hub, "u1")
		send(t, hub, client, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))

		time.Sleep(20 * time.Millisecond)
		if got := hub.Presence("doc-1"); len(got) != 0 {
			t.Fatalf("join without a workspace subscription must be ignored, got %v", got)
		}
	})
}

func TestPresenceLeave(t *testing.T) {
	t.Run("RemovesAndBroadcasts", func(t *testing.T) {
		hub := startTestHub(t)
		alice := connect(t, hub, "u1")
		bob := connect(t, hub, "u2")
		for _, client := range []*Client{alice, bob} {
			send(t, hub, client, protocol.NewSubscribeMessage("ws-1"))
			recvEvent(t, client)
		}
		send(t, hub, alice, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		recvEvent(t, alice)
		recvEvent(t, bob)

		send(t, hub, alice, protocol.NewPresenceLeaveMessage())

		event := recvEvent(t, bob)
		if event.Type != protocol.EventTypePresenceLeave {
			t.Fatalf("expected presence_leave, got %s", event.Type)
		}
		if got := hub.Presence("doc-1"); len(got) != 0 {
			t.Fatalf("expected doc-1 empty after leave, got %v", got)
		}
	})

	t.Run("KeptWhileAnotherTabHoldsResource", func(t *testing.T) {
		hub := startTestHub(t)
		tab1 := connect(t, hub, "u1")
		tab2 := connect(t, hub, "u1")
		for _, tab := range []*Client{tab1, tab2} {
			send(t, hub, tab, protocol.NewSubscribeMessage("ws-1"))
			recvEvent(t, tab)
			send(t, hub, tab, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		}

		time.Sleep(20 * time.Millisecond)
		send(t, hub, tab1, protocol.NewPresenceLeaveMessage())

		time.Sleep(20 * time.Millisecond)
		if got := hub.Presence("doc-1"); len(got) != 1 {
			t.Fatalf("presence must survive while another tab holds the resource, got %v", got)
		}
	})
}

func TestDisconnectGracePeriod(t *testing.T) {
	t.Run("LeaveBroadcastAfterGrace", func(t *testing.T) {
		hub := startTestHub(t)
		alice := connect(t, hub, "u1")
		observer := connect(t, hub, "u2")
		for _, client := range []*Client{alice, observer} {
			send(t, hub, client, protocol.NewSubscribeMessage("ws-1"))
			recvEvent(t, client)
		}
		send(t, hub, alice, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		recvEvent(t, alice)
		recvEvent(t, observer)

		disconnect(t, hub, alice)

		// Presence must survive until the grace period elapses.
		if got := hub.Presence("doc-1"); len(got) != 1 {
			t.Fatalf("presence should survive the grace window, got %v", got)
		}

		event := recvEvent(t, observer)
		if event.Type != protocol.EventTypePresenceLeave {
			t.Fatalf("expected presence_leave after grace, got %s", event.Type)
		}
		if got := hub.Presence("doc-1"); len(got) != 0 {
			t.Fatalf("expected doc-1 empty after grace leave, got %v", got)
		}
	})

	t.Run("RejoinWithinGraceCancelsLeave", func(t *testing.T) {
		hub := startTestHub(t)
		alice := connect(t, hub, "u1")
		observer := connect(t, hub, "u2")
		for _, client := range []*Client{alice, observer} {
			send(t, hub, client, protocol.NewSubscribeMessage("ws-1"))
			recvEvent(t, client)
		}
		send(t, hub, alice, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		recvEvent(t, alice)
		recvEvent(t, observer)

		disconnect(t, hub, alice)

		// Reconnect as the same user and re-join inside the grace window.
		reconnected := connect(t, hub, "u1")
		send(t, hub, reconnected, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, reconnected)
		send(t, hub, reconnected, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))

		events := drainEvents(observer, 150*time.Millisecond)
		for _, event := range events {
			if event.Type == protocol.EventTypePresenceLeave {
				t.Fatal("pending leave must be cancelled by a re-join within the grace period")
			}
		}
		if got := hub.Presence("doc-1"); len(got) != 1 {
			t.Fatalf("expected u1 still present after reconnect, got %v", got)
		}
	})

	t.Run("NoLeaveWhileOtherTabOpen", func(t *testing.T) {
		hub := startTestHub(t)
		tab1 := connect(t, hub, "u1")
		tab2 := connect(t, hub, "u1")
		for _, tab := range []*Client{tab1, tab2} {
			send(t, hub, tab, protocol.NewSubscribeMessage("ws-1"))
			recvEvent(t, tab)
			send(t, hub, tab, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		}

		time.Sleep(20 * time.Millisecond)
		disconnect(t, hub, tab1)

		time.Sleep(150 * time.Millisecond)
		if got := hub.Presence("doc-1"); len(got) != 1 {
			t.Fatalf("presence must survive while the second tab is open, got %v", got)
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("ReachesWorkspaceSubscribersOnly", func(t *testing.T) {
		hub := startTestHub(t)
		inside := connect(t, hub, "u1")
		outside := connect(t, hub, "u2")
		send(t, hub, inside, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, inside)
		send(t, hub, outside, protocol.NewSubscribeMessage("ws-2"))
		recvEvent(t, outside)

		hub.Dispatch(protocol.NewResourceEvent(
			protocol.EventTypeResourceCreated, "ws-1", "doc-9", protocol.ResourceTypeDocument, nil))

		event := recvEvent(t, inside)
		if event.Type != protocol.EventTypeResourceCreated || event.ResourceID != "doc-9" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if events := drainEvents(outside, 50*time.Millisecond); len(events) != 0 {
			t.Fatalf("event must not cross workspaces, got %v", events)
		}
	})

	t.Run("ResourceDeletedPurgesPresence", func(t *testing.T) {
		hub := startTestHub(t)
		client := connect(t, hub, "u1")
		send(t, hub, client, protocol.NewSubscribeMessage("ws-1"))
		recvEvent(t, client)
		send(t, hub, client, protocol.NewPresenceJoinMessage("doc-1", protocol.ResourceTypeDocument))
		recvEvent(t, client)

		hub.Dispatch(protocol.NewResourceEvent(
			protocol.EventTypeResourceDeleted, "ws-1", "doc-1", protocol.ResourceTypeDocument, nil))

		event := recvEvent(t, client)
		if event.Type != protocol.EventTypeResourceDeleted {
			t.Fatalf("expected resource_deleted, got %s", event.Type)
		}
		if got := hub.Presence("doc-1"); len(got) != 0 {
			t.Fatalf("presence for a deleted resource must be purged, got %v", got)
		}
	})

	t.Run("UserScopedEventIgnoresSubscription", func(t *testing.T) {
		hub := startTestHub(t)
		client := connect(t, hub, "u1")

		hub.DispatchToUser("u1", protocol.NewWorkspacesChangedEvent(nil))

		event := recvEvent(t, client)
		if event.Type != protocol.EventTypeWorkspacesChanged {
			t.Fatalf("expected workspaces_changed, got %s", event.Type)
		}
	})
}

func TestIsUserOnline(t *testing.T) {
	hub := startTestHub(t)
	client := connect(t, hub, "u1")

	if !hub.IsUserOnline("u1") {
		t.Fatal("u1 should be online after registration")
	}
	disconnect(t, hub, client)
	time.Sleep(20 * time.Millisecond)
	if hub.IsUserOnline("u1") {
		t.Fatal("u1 should be offline after unregistration")
	}
}

func unmarshalData(event *protocol.WorkspaceEvent, v interface{}) error {
	return json.Unmarshal(event.Data, v)
}
