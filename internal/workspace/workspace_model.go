package workspace

import (
	"time"

	"workspace-service/pkg/protocol"
)

// Workspace is a shared collaboration container grouping resources for a set
// of users.
type Workspace struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	OwnerID   string    `gorm:"type:char(36);not null;index" json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Resources []Resource `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"resources,omitempty"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// Resource is a workspace-owned item that supports live presence.
type Resource struct {
	ID          string                `gorm:"type:char(36);primaryKey" json:"id"`
	WorkspaceID string                `gorm:"type:char(36);not null;index" json:"workspaceId"`
	Type        protocol.ResourceType `gorm:"type:varchar(20);not null" json:"type"`
	Title       string                `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func (Resource) TableName() string {
	return "resources"
}

type CreateWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

type UpdateWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateResourceRequest struct {
	Type  protocol.ResourceType `json:"type" binding:"required"`
	Title string                `json:"title" binding:"required"`
}

type UpdateResourceRequest struct {
	Title string `json:"title" binding:"required"`
}
