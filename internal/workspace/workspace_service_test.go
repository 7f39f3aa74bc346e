package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-service/pkg/protocol"
)

type fakeRepo struct {
	workspaces map[string]*Workspace
	resources  map[string]*Resource
	failCreate bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		workspaces: make(map[string]*Workspace),
		resources:  make(map[string]*Resource),
	}
}

func (r *fakeRepo) CreateWorkspace(_ context.Context, ws *Workspace) error {
	if r.failCreate {
		return errors.New("insert failed")
	}
	r.workspaces[ws.ID] = ws
	return nil
}

func (r *fakeRepo) GetWorkspace(_ context.Context, id string) (*Workspace, error) {
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, errors.New("workspace not found")
	}
	return ws, nil
}

func (r *fakeRepo) ListWorkspacesByOwner(_ context.Context, ownerID string) ([]Workspace, error) {
	var out []Workspace
	for _, ws := range r.workspaces {
		if ws.OwnerID == ownerID {
			out = append(out, *ws)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateWorkspace(_ context.Context, ws *Workspace) error {
	r.workspaces[ws.ID] = ws
	return nil
}

func (r *fakeRepo) DeleteWorkspace(_ context.Context, id string) error {
	delete(r.workspaces, id)
	return nil
}

func (r *fakeRepo) CreateResource(_ context.Context, res *Resource) error {
	r.resources[res.ID] = res
	return nil
}

func (r *fakeRepo) GetResource(_ context.Context, id string) (*Resource, error) {
	res, ok := r.resources[id]
	if !ok {
		return nil, errors.New("resource not found")
	}
	return res, nil
}

func (r *fakeRepo) ListResources(_ context.Context, workspaceID string) ([]Resource, error) {
	var out []Resource
	for _, res := range r.resources {
		if res.WorkspaceID == workspaceID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateResource(_ context.Context, res *Resource) error {
	r.resources[res.ID] = res
	return nil
}

func (r *fakeRepo) DeleteResource(_ context.Context, id string) error {
	delete(r.resources, id)
	return nil
}

type recordingPublisher struct {
	events     []*protocol.WorkspaceEvent
	userEvents map[string][]*protocol.WorkspaceEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{userEvents: make(map[string][]*protocol.WorkspaceEvent)}
}

func (p *recordingPublisher) PublishEvent(event *protocol.WorkspaceEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishUserEvent(userID string, event *protocol.WorkspaceEvent) error {
	p.userEvents[userID] = append(p.userEvents[userID], event)
	return nil
}

func (p *recordingPublisher) eventTypes() []protocol.EventType {
	out := make([]protocol.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func TestCreateWorkspacePublishesLifecycle(t *testing.T) {
	repo := newFakeRepo()
	pub := newRecordingPublisher()
	svc := NewService(repo, pub)

	ws, err := svc.CreateWorkspace(context.Background(), "user-1", &CreateWorkspaceRequest{Name: "Design"})
	require.NoError(t, err)
	require.NotEmpty(t, ws.ID)

	assert.Equal(t, []protocol.EventType{protocol.EventTypeWorkspaceCreated}, pub.eventTypes())
	require.Len(t, pub.userEvents["user-1"], 1)
	assert.Equal(t, protocol.EventTypeWorkspacesChanged, pub.userEvents["user-1"][0].Type)
}

func TestCreateWorkspacePublishesNothingOnRepoError(t *testing.T) {
	repo := newFakeRepo()
	repo.failCreate = true
	pub := newRecordingPublisher()
	svc := NewService(repo, pub)

	_, err := svc.CreateWorkspace(context.Background(), "user-1", &CreateWorkspaceRequest{Name: "Design"})
	require.Error(t, err)
	assert.Empty(t, pub.events)
	assert.Empty(t, pub.userEvents)
}

func TestDeleteWorkspaceNotifiesOwner(t *testing.T) {
	repo := newFakeRepo()
	pub := newRecordingPublisher()
	svc := NewService(repo, pub)

	ws, err := svc.CreateWorkspace(context.Background(), "user-1", &CreateWorkspaceRequest{Name: "Design"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteWorkspace(context.Background(), ws.ID))

	assert.Equal(t, []protocol.EventType{
		protocol.EventTypeWorkspaceCreated,
		protocol.EventTypeWorkspaceDeleted,
	}, pub.eventTypes())
	require.Len(t, pub.userEvents["user-1"], 2)
	assert.Equal(t, protocol.EventTypeWorkspacesChanged, pub.userEvents["user-1"][1].Type)
}

func TestResourceLifecycleEventsCarryRoutingFields(t *testing.T) {
	repo := newFakeRepo()
	pub := newRecordingPublisher()
	svc := NewService(repo, pub)

	res, err := svc.CreateResource(context.Background(), "ws-1", &CreateResourceRequest{
		Type:  protocol.ResourceTypeDocument,
		Title: "Roadmap",
	})
	require.NoError(t, err)

	_, err = svc.UpdateResource(context.Background(), res.ID, &UpdateResourceRequest{Title: "Roadmap v2"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteResource(context.Background(), res.ID))

	require.Len(t, pub.events, 3)
	for _, e := range pub.events {
		assert.Equal(t, "ws-1", e.WorkspaceID)
		assert.Equal(t, res.ID, e.ResourceID)
		assert.Equal(t, protocol.ResourceTypeDocument, e.ResourceType)
	}
	assert.Equal(t, protocol.EventTypeResourceCreated, pub.events[0].Type)
	assert.Equal(t, protocol.EventTypeResourceUpdated, pub.events[1].Type)
	assert.Equal(t, protocol.EventTypeResourceDeleted, pub.events[2].Type)
	assert.Nil(t, pub.events[2].Data)
}

func TestUpdateWorkspaceRenames(t *testing.T) {
	repo := newFakeRepo()
	pub := newRecordingPublisher()
	svc := NewService(repo, pub)

	ws, err := svc.CreateWorkspace(context.Background(), "user-1", &CreateWorkspaceRequest{Name: "Old"})
	require.NoError(t, err)

	updated, err := svc.UpdateWorkspace(context.Background(), ws.ID, &UpdateWorkspaceRequest{Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)

	got, err := svc.GetWorkspace(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
}
