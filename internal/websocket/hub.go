package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"workspace-service/pkg/presence"
	"workspace-service/pkg/protocol"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")
	ErrHubStopped         = fmt.Errorf("hub stopped")
)

// DefaultGracePeriod is how long a user's presence survives an unexpected
// disconnect before the leave is broadcast. A reconnect that re-joins the
// resource within this window cancels the pending leave, so tab refreshes and
// network blips do not flicker.
const DefaultGracePeriod = 10 * time.Second

// EventRelay fans events out to other hub instances. Implemented by
// services.RedisService; nil disables cross-instance relay.
type EventRelay interface {
	PublishEvent(ctx context.Context, env *protocol.RelayEnvelope) error
	SubscribeEvents(ctx context.Context) (<-chan *protocol.RelayEnvelope, error)
}

// StatusTracker records user online status in shared storage so that any
// instance can answer status queries. Also implemented by
// services.RedisService; nil disables tracking.
type StatusTracker interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type clientMessage struct {
	client  *Client
	message *protocol.ClientMessage
}

type userEvent struct {
	userID string
	event  *protocol.WorkspaceEvent
}

// presenceKey identifies one user's presence on one resource, independent of
// which connection established it.
type presenceKey struct {
	userID     string
	resourceID string
}

// Hub is the authoritative subscription router and event dispatcher. All
// connection, subscription and presence state is mutated only from the Run
// loop, which serializes every handler.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Client lookup by user ID
	userClients map[string]map[*Client]bool

	// Broadcast sets by workspace ID
	workspaceClients map[string]map[*Client]bool

	// Authoritative presence state
	store *presence.Store

	// Workspace owning each resource with live presence, recorded from the
	// joining connection's subscription
	resourceWorkspace map[string]string

	// Pending grace-period leave timers
	pendingLeaves map[presenceKey]*time.Timer

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Handle messages from clients
	handleMessage chan *clientMessage

	// Workspace-scoped events from local collaborators (kafka consumer,
	// notify endpoint, workspace service)
	dispatch chan *protocol.WorkspaceEvent

	// User-scoped events
	dispatchUser chan *userEvent

	// Fired grace-period timers re-enter the loop here
	expiredLeaves chan presenceKey

	// Cross-instance relay, optional
	relay      EventRelay
	instanceID string

	// Shared online status, optional
	status StatusTracker

	gracePeriod time.Duration

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	// Guards map reads from outside the Run loop
	mu sync.RWMutex
}

func NewHub(relay EventRelay, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:           make(map[*Client]bool),
		userClients:       make(map[string]map[*Client]bool),
		workspaceClients:  make(map[string]map[*Client]bool),
		store:             presence.NewStore(),
		resourceWorkspace: make(map[string]string),
		pendingLeaves:     make(map[presenceKey]*time.Timer),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		handleMessage:     make(chan *clientMessage),
		dispatch:          make(chan *protocol.WorkspaceEvent, 64),
		dispatchUser:      make(chan *userEvent, 64),
		expiredLeaves:     make(chan presenceKey),
		relay:             relay,
		instanceID:        instanceID,
		gracePeriod:       DefaultGracePeriod,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// SetGracePeriod overrides the disconnect grace period. Call before Run.
func (h *Hub) SetGracePeriod(d time.Duration) {
	h.gracePeriod = d
}

// SetStatusTracker enables shared online status tracking. Call before Run.
func (h *Hub) SetStatusTracker(t StatusTracker) {
	h.status = t
}

func (h *Hub) Run() {
	var relayCh <-chan *protocol.RelayEnvelope
	if h.relay != nil {
		ch, err := h.relay.SubscribeEvents(h.ctx)
		if err != nil {
			slog.Error("Failed to subscribe to event relay", "error", err)
		} else {
			relayCh = ch
		}
	}

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case clientMsg := <-h.handleMessage:
			h.handleClientMessage(clientMsg)

		case event := <-h.dispatch:
			h.handleDispatch(event, true)

		case ue := <-h.dispatchUser:
			h.sendToUser(ue.userID, ue.event)
			h.publishRelay(&protocol.RelayEnvelope{
				Origin: h.instanceID,
				UserID: ue.userID,
				Event:  ue.event,
			})

		case key := <-h.expiredLeaves:
			h.completePendingLeave(key)

		case env, ok := <-relayCh:
			if !ok {
				relayCh = nil
				continue
			}
			h.handleRelay(env)

		case <-h.ctx.Done():
			slog.Info("WebSocket hub shutting down")
			h.stopPendingLeaves()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// Dispatch fans a workspace-scoped event out to every subscribed connection.
// Safe to call from any goroutine.
func (h *Hub) Dispatch(event *protocol.WorkspaceEvent) error {
	select {
	case h.dispatch <- event:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// DispatchToUser fans a user-scoped event out to every connection of one user
// regardless of workspace subscription.
func (h *Hub) DispatchToUser(userID string, event *protocol.WorkspaceEvent) error {
	select {
	case h.dispatchUser <- &userEvent{userID: userID, event: event}:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// Presence returns the current occupants of a resource, never nil.
func (h *Hub) Presence(resourceID string) []protocol.ResourcePresence {
	return h.store.Get(resourceID)
}

// IsUserOnline reports whether the user has at least one registered connection.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// SubscriberCount reports how many connections receive events for a workspace.
func (h *Hub) SubscriberCount(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.workspaceClients[workspaceID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	firstConnection := h.userClients[client.identity.UserID] == nil
	if firstConnection {
		h.userClients[client.identity.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.identity.UserID][client] = true

	if firstConnection && h.status != nil {
		go func(userID string) {
			if err := h.status.SetUserOnline(h.ctx, userID); err != nil {
				slog.Error("Failed to mark user online", "userID", userID, "error", err)
			}
		}(client.identity.UserID)
	}

	slog.Info("Client registered", "clientID", client.id, "userID", client.identity.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)

	userID := client.identity.UserID
	lastConnection := false
	if set := h.userClients[userID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.userClients, userID)
			lastConnection = true
		}
	}
	if client.workspaceID != "" {
		h.removeFromWorkspaceLocked(client)
	}
	h.mu.Unlock()

	// Presence held by this connection is not dropped immediately. Unless
	// another connection of the same user still holds the resource, a
	// cancellable leave is scheduled after the grace period.
	for resourceID := range client.joined {
		if h.userHoldsResource(userID, resourceID) {
			continue
		}
		h.schedulePendingLeave(presenceKey{userID: userID, resourceID: resourceID})
	}

	if lastConnection && h.status != nil {
		go func() {
			if err := h.status.SetUserOffline(h.ctx, userID); err != nil {
				slog.Error("Failed to mark user offline", "userID", userID, "error", err)
			}
		}()
	}

	client.closeSendChannel()
	slog.Info("Client unregistered", "clientID", client.id, "userID", userID)
}

func (h *Hub) handleClientMessage(cm *clientMessage) {
	switch cm.message.Type {
	case protocol.MessageTypeSubscribe:
		h.handleSubscribe(cm.client, cm.message.WorkspaceID)
	case protocol.MessageTypePresenceJoin:
		h.handlePresenceJoin(cm.client, cm.message.ResourceID, cm.message.ResourceType)
	case protocol.MessageTypePresenceLeave:
		h.handlePresenceLeave(cm.client)
	default:
		// Unknown types are ignored, not fatal.
		slog.Debug("Ignoring unknown message type", "type", cm.message.Type, "clientID", cm.client.id)
	}
}

// handleSubscribe records the connection's interest in one workspace. Each
// subscribe replaces any prior subscription, then answers with a full
// presence_sync so the client can rebuild its snapshot from scratch.
func (h *Hub) handleSubscribe(client *Client, workspaceID string) {
	h.mu.Lock()
	if client.workspaceID != "" {
		h.removeFromWorkspaceLocked(client)
	}
	client.workspaceID = workspaceID
	if h.workspaceClients[workspaceID] == nil {
		h.workspaceClients[workspaceID] = make(map[*Client]bool)
	}
	h.workspaceClients[workspaceID][client] = true
	h.mu.Unlock()

	client.SendEvent(protocol.NewPresenceSyncEvent(workspaceID, h.workspacePresence(workspaceID)))

	slog.Info("Client subscribed", "clientID", client.id, "userID", client.identity.UserID, "workspaceID", workspaceID)
}

// handlePresenceJoin is idempotent per (userID, resourceID): repeated joins
// from extra tabs or subscribe replays never produce duplicate entries, and a
// join inside the grace window cancels the pending leave.
func (h *Hub) handlePresenceJoin(client *Client, resourceID string, resourceType protocol.ResourceType) {
	workspaceID := client.workspaceID
	if workspaceID == "" {
		slog.Debug("Presence join without workspace subscription", "clientID", client.id)
		return
	}

	key := presenceKey{userID: client.identity.UserID, resourceID: resourceID}
	h.cancelPendingLeave(key)

	client.joined[resourceID] = resourceType
	h.resourceWorkspace[resourceID] = workspaceID

	entry := protocol.ResourcePresence{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		UserID:       client.identity.UserID,
		UserName:     client.identity.UserName,
		UserColor:    client.identity.UserColor,
		JoinedAt:     time.Now().UTC(),
	}
	h.store.ApplyJoin(entry)

	// Broadcast to every subscriber including the sender; the client store's
	// idempotent join makes the echo harmless.
	event := protocol.NewPresenceJoinEvent(workspaceID, entry)
	h.sendToWorkspace(workspaceID, event)
	h.publishRelay(&protocol.RelayEnvelope{Origin: h.instanceID, Event: event})
}

func (h *Hub) handlePresenceLeave(client *Client) {
	for resourceID := range client.joined {
		delete(client.joined, resourceID)
		if h.userHoldsResource(client.identity.UserID, resourceID) {
			continue
		}
		h.removePresence(presenceKey{userID: client.identity.UserID, resourceID: resourceID})
	}
}

// handleDispatch fans a collaborator event out to the affected workspace. A
// resource deletion also purges any presence on that resource, since presence
// for a deleted resource is meaningless.
func (h *Hub) handleDispatch(event *protocol.WorkspaceEvent, local bool) {
	if event.Type == protocol.EventTypeResourceDeleted && event.ResourceID != "" {
		h.purgeResource(event.ResourceID)
	}

	h.sendToWorkspace(event.WorkspaceID, event)
	if local {
		h.publishRelay(&protocol.RelayEnvelope{Origin: h.instanceID, Event: event})
	}
}

func (h *Hub) handleRelay(env *protocol.RelayEnvelope) {
	if env.Origin == h.instanceID || env.Event == nil {
		return
	}
	if env.UserID != "" {
		h.sendToUser(env.UserID, env.Event)
		return
	}
	// Relayed events mirror remote state into local delivery only; they are
	// never re-published.
	switch env.Event.Type {
	case protocol.EventTypePresenceJoin:
		if entry, err := decodePresenceEntry(env.Event); err == nil {
			h.resourceWorkspace[entry.ResourceID] = env.Event.WorkspaceID
			h.store.ApplyJoin(*entry)
		}
	case protocol.EventTypePresenceLeave:
		if userID := decodeLeaveUserID(env.Event); userID != "" {
			h.store.ApplyLeave(env.Event.ResourceID, userID)
		}
	case protocol.EventTypeResourceDeleted:
		h.purgeResource(env.Event.ResourceID)
	}
	h.sendToWorkspace(env.Event.WorkspaceID, env.Event)
}

// userHoldsResource reports whether any registered connection of the user has
// the resource joined. Used to dedup leaves across browser tabs.
func (h *Hub) userHoldsResource(userID, resourceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for other := range h.userClients[userID] {
		if _, ok := other.joined[resourceID]; ok {
			return true
		}
	}
	return false
}

func (h *Hub) schedulePendingLeave(key presenceKey) {
	if existing, ok := h.pendingLeaves[key]; ok {
		existing.Stop()
	}
	h.pendingLeaves[key] = time.AfterFunc(h.gracePeriod, func() {
		select {
		case h.expiredLeaves <- key:
		case <-h.ctx.Done():
		}
	})
}

func (h *Hub) cancelPendingLeave(key presenceKey) {
	if timer, ok := h.pendingLeaves[key]; ok {
		timer.Stop()
		delete(h.pendingLeaves, key)
	}
}

func (h *Hub) completePendingLeave(key presenceKey) {
	if _, ok := h.pendingLeaves[key]; !ok {
		// Cancelled by a re-join between timer fire and loop pickup.
		return
	}
	delete(h.pendingLeaves, key)

	if h.userHoldsResource(key.userID, key.resourceID) {
		return
	}
	h.removePresence(key)
}

func (h *Hub) removePresence(key presenceKey) {
	workspaceID := h.resourceWorkspace[key.resourceID]
	h.store.ApplyLeave(key.resourceID, key.userID)
	if len(h.store.Get(key.resourceID)) == 0 {
		delete(h.resourceWorkspace, key.resourceID)
	}

	event := protocol.NewPresenceLeaveEvent(workspaceID, key.resourceID, key.userID)
	h.sendToWorkspace(workspaceID, event)
	h.publishRelay(&protocol.RelayEnvelope{Origin: h.instanceID, Event: event})
}

func (h *Hub) purgeResource(resourceID string) {
	for key, timer := range h.pendingLeaves {
		if key.resourceID == resourceID {
			timer.Stop()
			delete(h.pendingLeaves, key)
		}
	}
	h.store.ApplyResourceDeleted(resourceID)
	delete(h.resourceWorkspace, resourceID)
}

func (h *Hub) stopPendingLeaves() {
	for key, timer := range h.pendingLeaves {
		timer.Stop()
		delete(h.pendingLeaves, key)
	}
}

// workspacePresence collects all presence entries whose resource belongs to
// the workspace, for the presence_sync payload.
func (h *Hub) workspacePresence(workspaceID string) []protocol.ResourcePresence {
	entries := []protocol.ResourcePresence{}
	for _, entry := range h.store.Entries() {
		if h.resourceWorkspace[entry.ResourceID] == workspaceID {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (h *Hub) sendToWorkspace(workspaceID string, event *protocol.WorkspaceEvent) {
	if workspaceID == "" {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.workspaceClients[workspaceID]))
	for client := range h.workspaceClients[workspaceID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.SendEvent(event); err != nil {
			slog.Debug("Dropped event for client", "clientID", client.id, "type", event.Type, "error", err)
		}
	}
}

func (h *Hub) sendToUser(userID string, event *protocol.WorkspaceEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.userClients[userID]))
	for client := range h.userClients[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.SendEvent(event); err != nil {
			slog.Debug("Dropped event for client", "clientID", client.id, "type", event.Type, "error", err)
		}
	}
}

func (h *Hub) publishRelay(env *protocol.RelayEnvelope) {
	if h.relay == nil {
		return
	}
	if err := h.relay.PublishEvent(h.ctx, env); err != nil {
		slog.Error("Failed to publish event to relay", "type", env.Event.Type, "error", err)
	}
}

// removeFromWorkspaceLocked detaches the client from its current workspace
// broadcast set. Caller must hold h.mu.
func (h *Hub) removeFromWorkspaceLocked(client *Client) {
	if set := h.workspaceClients[client.workspaceID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.workspaceClients, client.workspaceID)
		}
	}
	client.workspaceID = ""
}

func decodePresenceEntry(event *protocol.WorkspaceEvent) (*protocol.ResourcePresence, error) {
	var entry protocol.ResourcePresence
	if err := json.Unmarshal(event.Data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func decodeLeaveUserID(event *protocol.WorkspaceEvent) string {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return ""
	}
	return payload.UserID
}
