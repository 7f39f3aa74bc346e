package workspace

import (
	"workspace-service/pkg/protocol"
)

// Dispatcher is the local hub surface used when no message broker is
// configured.
type Dispatcher interface {
	Dispatch(event *protocol.WorkspaceEvent) error
	DispatchToUser(userID string, event *protocol.WorkspaceEvent) error
}

// DirectPublisher hands lifecycle events straight to the in-process hub,
// bypassing kafka. Single-instance deployments use this.
type DirectPublisher struct {
	dispatcher Dispatcher
}

func NewDirectPublisher(dispatcher Dispatcher) *DirectPublisher {
	return &DirectPublisher{dispatcher: dispatcher}
}

func (p *DirectPublisher) PublishEvent(event *protocol.WorkspaceEvent) error {
	return p.dispatcher.Dispatch(event)
}

func (p *DirectPublisher) PublishUserEvent(userID string, event *protocol.WorkspaceEvent) error {
	return p.dispatcher.DispatchToUser(userID, event)
}
