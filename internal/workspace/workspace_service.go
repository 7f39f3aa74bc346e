package workspace

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/google/uuid"

	"workspace-service/pkg/protocol"
)

// EventPublisher hands lifecycle events to the fan-out pipeline. Satisfied by
// the kafka producer or, without a broker, by the direct hub publisher.
type EventPublisher interface {
	PublishEvent(event *protocol.WorkspaceEvent) error
	PublishUserEvent(userID string, event *protocol.WorkspaceEvent) error
}

// Service owns the workspace/resource registry. Every mutation publishes the
// matching lifecycle event; the dispatcher only relays, so a publish failure
// is logged, never surfaced to the caller.
type Service struct {
	repo      Repository
	publisher EventPublisher
}

func NewService(repo Repository, publisher EventPublisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
	}
}

func (s *Service) CreateWorkspace(ctx context.Context, ownerID string, req *CreateWorkspaceRequest) (*Workspace, error) {
	ws := &Workspace{
		ID:      uuid.New().String(),
		Name:    req.Name,
		OwnerID: ownerID,
	}
	if err := s.repo.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}

	s.publish(protocol.NewWorkspaceLifecycleEvent(protocol.EventTypeWorkspaceCreated, ws.ID, marshal(ws)))
	s.publishToUser(ownerID, protocol.NewWorkspacesChangedEvent(nil))
	return ws, nil
}

func (s *Service) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	return s.repo.GetWorkspace(ctx, id)
}

func (s *Service) ListWorkspaces(ctx context.Context, ownerID string) ([]Workspace, error) {
	return s.repo.ListWorkspacesByOwner(ctx, ownerID)
}

func (s *Service) UpdateWorkspace(ctx context.Context, id string, req *UpdateWorkspaceRequest) (*Workspace, error) {
	ws, err := s.repo.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	ws.Name = req.Name
	if err := s.repo.UpdateWorkspace(ctx, ws); err != nil {
		return nil, err
	}

	s.publish(protocol.NewWorkspaceLifecycleEvent(protocol.EventTypeWorkspaceUpdated, ws.ID, marshal(ws)))
	return ws, nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, id string) error {
	ws, err := s.repo.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteWorkspace(ctx, id); err != nil {
		return err
	}

	s.publish(protocol.NewWorkspaceLifecycleEvent(protocol.EventTypeWorkspaceDeleted, id, nil))
	s.publishToUser(ws.OwnerID, protocol.NewWorkspacesChangedEvent(nil))
	return nil
}

func (s *Service) CreateResource(ctx context.Context, workspaceID string, req *CreateResourceRequest) (*Resource, error) {
	res := &Resource{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Type:        req.Type,
		Title:       req.Title,
	}
	if err := s.repo.CreateResource(ctx, res); err != nil {
		return nil, err
	}

	s.publish(protocol.NewResourceEvent(
		protocol.EventTypeResourceCreated, workspaceID, res.ID, res.Type, marshal(res)))
	return res, nil
}

func (s *Service) ListResources(ctx context.Context, workspaceID string) ([]Resource, error) {
	return s.repo.ListResources(ctx, workspaceID)
}

func (s *Service) UpdateResource(ctx context.Context, id string, req *UpdateResourceRequest) (*Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	res.Title = req.Title
	if err := s.repo.UpdateResource(ctx, res); err != nil {
		return nil, err
	}

	s.publish(protocol.NewResourceEvent(
		protocol.EventTypeResourceUpdated, res.WorkspaceID, res.ID, res.Type, marshal(res)))
	return res, nil
}

func (s *Service) DeleteResource(ctx context.Context, id string) error {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteResource(ctx, id); err != nil {
		return err
	}

	s.publish(protocol.NewResourceEvent(
		protocol.EventTypeResourceDeleted, res.WorkspaceID, res.ID, res.Type, nil))
	return nil
}

func (s *Service) publish(event *protocol.WorkspaceEvent) {
	if err := s.publisher.PublishEvent(event); err != nil {
		slog.Error("Failed to publish lifecycle event", "type", event.Type, "error", err)
	}
}

func (s *Service) publishToUser(userID string, event *protocol.WorkspaceEvent) {
	if err := s.publisher.PublishUserEvent(userID, event); err != nil {
		slog.Error("Failed to publish user event", "type", event.Type, "userID", userID, "error", err)
	}
}

func marshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
