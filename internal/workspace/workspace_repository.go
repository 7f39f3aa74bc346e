package workspace

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	CreateWorkspace(ctx context.Context, ws *Workspace) error
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
	ListWorkspacesByOwner(ctx context.Context, ownerID string) ([]Workspace, error)
	UpdateWorkspace(ctx context.Context, ws *Workspace) error
	DeleteWorkspace(ctx context.Context, id string) error

	CreateResource(ctx context.Context, res *Resource) error
	GetResource(ctx context.Context, id string) (*Resource, error)
	ListResources(ctx context.Context, workspaceID string) ([]Resource, error)
	UpdateResource(ctx context.Context, res *Resource) error
	DeleteResource(ctx context.Context, id string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Migrate creates the registry tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Workspace{}, &Resource{})
}

func (r *repository) CreateWorkspace(ctx context.Context, ws *Workspace) error {
	return r.db.WithContext(ctx).Create(ws).Error
}

func (r *repository) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var ws Workspace
	if err := r.db.WithContext(ctx).Preload("Resources").First(&ws, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *repository) ListWorkspacesByOwner(ctx context.Context, ownerID string) ([]Workspace, error) {
	var workspaces []Workspace
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&workspaces).Error; err != nil {
		return nil, err
	}
	return workspaces, nil
}

func (r *repository) UpdateWorkspace(ctx context.Context, ws *Workspace) error {
	return r.db.WithContext(ctx).Save(ws).Error
}

func (r *repository) DeleteWorkspace(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Workspace{}, "id = ?", id).Error
}

func (r *repository) CreateResource(ctx context.Context, res *Resource) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *repository) GetResource(ctx context.Context, id string) (*Resource, error) {
	var res Resource
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) ListResources(ctx context.Context, workspaceID string) ([]Resource, error) {
	var resources []Resource
	if err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Find(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

func (r *repository) UpdateResource(ctx context.Context, res *Resource) error {
	return r.db.WithContext(ctx).Save(res).Error
}

func (r *repository) DeleteResource(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Resource{}, "id = ?", id).Error
}
