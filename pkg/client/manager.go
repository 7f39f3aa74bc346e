// Package client implements the workspace sync client: one managed transport
// connection per session, automatic reconnection, and the event bridge that
// feeds presence state and application callbacks.
package client

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"workspace-service/pkg/presence"
	"workspace-service/pkg/protocol"
)

// DefaultReconnectDelay matches the reference client's fixed retry delay.
const DefaultReconnectDelay = 3 * time.Second

// Options configures a Manager. UserID is required; WorkspaceID is optional
// (a connection may exist purely for user-scoped broadcasts).
type Options struct {
	ServerURL   string
	UserID      string
	UserName    string
	UserColor   string
	WorkspaceID string

	// ReconnectDelay between an unexpected close and the next attempt.
	// Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// ReconnectJitter is the fraction (0..1) of ReconnectDelay added as
	// random jitter, to avoid a thundering herd after a server restart.
	ReconnectJitter float64

	// Dialer overrides the transport; nil uses gorilla/websocket.
	Dialer Dialer

	Callbacks Callbacks
}

// Manager owns exactly one live connection for one session. All mutable
// connection state lives behind its lock; a monotonically increasing
// generation counter lets handlers from superseded connections detect that
// they are stale and no-op.
type Manager struct {
	opts   Options
	dialer Dialer
	store  *presence.Store
	bridge *bridge

	mu             sync.Mutex
	conn           Conn
	generation     uint64
	connecting     bool
	connected      bool
	cleaningUp     bool
	reconnectTimer *time.Timer
}

func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = defaultDialer
	}

	store := presence.NewStore()
	return &Manager{
		opts:   opts,
		dialer: dialer,
		store:  store,
		bridge: &bridge{store: store, callbacks: opts.Callbacks},
	}
}

// Presence exposes the derived presence store for UI consumers.
func (m *Manager) Presence() *presence.Store {
	return m.store
}

// IsConnected reports whether the transport is currently open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Connect establishes the connection. It is a no-op while a connection is
// already open or being opened, and without a user identity it silently does
// nothing.
func (m *Manager) Connect(ctx context.Context) {
	if m.opts.UserID == "" {
		slog.Debug("Connect skipped: no user identity")
		return
	}

	m.mu.Lock()
	if m.connected || m.connecting {
		m.mu.Unlock()
		return
	}
	m.connecting = true
	m.cleaningUp = false
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	rawURL, err := handshakeURL(m.opts.ServerURL, m.opts.UserID, m.opts.UserName, m.opts.UserColor)
	if err != nil {
		slog.Error("Invalid server URL", "url", m.opts.ServerURL, "error", err)
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		return
	}

	conn, err := m.dialer(ctx, rawURL)
	if err != nil {
		slog.Warn("Connection attempt failed", "error", err)
		m.mu.Lock()
		m.connecting = false
		// A failed dial behaves like an unexpected close: retry unless torn
		// down in the meantime.
		if generation == m.generation && !m.cleaningUp {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if generation != m.generation || m.cleaningUp {
		// Superseded while dialing; this connection is already stale.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.connecting = false
	m.connected = true
	m.mu.Unlock()

	m.notifyConnection(true)
	slog.Info("Connected", "userID", m.opts.UserID, "workspaceID", m.opts.WorkspaceID)

	if m.opts.WorkspaceID != "" {
		m.writeMessage(protocol.NewSubscribeMessage(m.opts.WorkspaceID))
	}

	go m.readLoop(generation, conn)
}

// Disconnect is the deliberate teardown path: it cancels any pending
// reconnect, closes the transport and clears the presence snapshot. The
// resulting close event never schedules a reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cleaningUp = true
	m.generation++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	wasConnected := m.connected
	m.connected = false
	m.connecting = false
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.store.Clear()
	if wasConnected {
		m.notifyConnection(false)
	}
}

// JoinResource announces the user started viewing a resource. Best-effort: a
// no-op while disconnected, since the server rebuilds presence from the
// post-reconnect subscribe/join replay anyway.
func (m *Manager) JoinResource(resourceID string, resourceType protocol.ResourceType) {
	m.writeMessage(protocol.NewPresenceJoinMessage(resourceID, resourceType))
}

// LeaveResource announces the user stopped viewing its resource. Best-effort.
func (m *Manager) LeaveResource() {
	m.writeMessage(protocol.NewPresenceLeaveMessage())
}

func (m *Manager) writeMessage(msg *protocol.ClientMessage) {
	m.mu.Lock()
	conn := m.conn
	open := m.connected
	m.mu.Unlock()

	if !open || conn == nil {
		return
	}

	frame, err := msg.Encode()
	if err != nil {
		slog.Error("Failed to encode message", "type", msg.Type, "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		slog.Debug("Failed to write message", "type", msg.Type, "error", err)
	}
}

func (m *Manager) readLoop(generation uint64, conn Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("Connection read failed", "error", err)
			break
		}

		event, err := protocol.DecodeEvent(frame)
		if err != nil {
			// Malformed frames are logged and dropped, never fatal.
			slog.Error("Failed to decode event", "error", err)
			continue
		}
		m.bridge.handle(event)
	}

	m.handleClose(generation)
}

// handleClose runs when a connection's read loop exits. A close belonging to
// a superseded generation is ignored entirely: it must not touch the live
// connection's state or schedule a reconnect.
func (m *Manager) handleClose(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		slog.Debug("Ignoring close from stale connection", "generation", generation)
		return
	}

	m.connected = false
	m.conn = nil

	if m.cleaningUp {
		return
	}

	go m.notifyConnection(false)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnect timer. Caller must hold
// m.mu. At most one attempt is scheduled per close event.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		return
	}

	delay := m.opts.ReconnectDelay
	if m.opts.ReconnectJitter > 0 {
		delay += time.Duration(rand.Float64() * m.opts.ReconnectJitter * float64(m.opts.ReconnectDelay))
	}

	slog.Info("Scheduling reconnect", "delay", delay)
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		cleaningUp := m.cleaningUp
		m.mu.Unlock()

		if !cleaningUp {
			m.Connect(context.Background())
		}
	})
}

func (m *Manager) notifyConnection(connected bool) {
	if m.opts.Callbacks.OnConnectionChange != nil {
		m.opts.Callbacks.OnConnectionChange(connected)
	}
}
