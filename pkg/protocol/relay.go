package protocol

// RelayEnvelope wraps an event for cross-instance fan-out over the pub/sub
// relay. Origin carries the publishing instance ID so an instance can skip
// its own messages; a non-empty UserID marks a user-scoped delivery.
type RelayEnvelope struct {
	Origin string          `json:"origin"`
	UserID string          `json:"userId,omitempty"`
	Event  *WorkspaceEvent `json:"event"`
}
