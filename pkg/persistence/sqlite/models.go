package sqlite

import (
	"time"

	"github.com/dukex/itemflow/pkg/models"
)

type projectModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	WorkflowID string
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
}

func (projectModel) TableName() string { return "projects" }

type workflowModel struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	ProjectID     string `gorm:"index;not null"`
	Version       int64  `gorm:"not null"`
	InitialNodeID string
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (workflowModel) TableName() string { return "workflow_descriptions" }

// Seq keeps insertion order within a workflow.
type nodeModel struct {
	WorkflowID       string   `gorm:"primaryKey"`
	ID               string   `gorm:"primaryKey"`
	Seq              int64    `gorm:"not null;index"`
	Title            string   `gorm:"not null"`
	IsFinal          bool     `gorm:"not null"`
	AuthorizedUsers  []string `gorm:"serializer:json"`
	AuthorizedGroups []string `gorm:"serializer:json"`
}

func (nodeModel) TableName() string { return "node_descriptions" }

type linkModel struct {
	WorkflowID    string            `gorm:"primaryKey"`
	ID            string            `gorm:"primaryKey"`
	Seq           int64             `gorm:"not null;index"`
	Title         string            `gorm:"not null"`
	InitialNodeID string            `gorm:"not null;index"`
	FinalNodeID   string            `gorm:"not null"`
	EligibleTypes []models.ItemType `gorm:"serializer:json"`
}

func (linkModel) TableName() string { return "link_descriptions" }

type itemModel struct {
	ID         string    `gorm:"primaryKey"`
	ProjectID  string    `gorm:"not null;index"`
	WorkflowID string    `gorm:"not null;index"`
	Type       string    `gorm:"not null"`
	Title      string    `gorm:"not null"`
	Version    int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (itemModel) TableName() string { return "items" }

// Position 0 is the current instance when IsCurrent, then history most recent first.
type instanceModel struct {
	ID                string `gorm:"primaryKey"`
	ItemID            string `gorm:"not null;index"`
	NodeDescriptionID string `gorm:"not null;index"`
	Responsible       string
	IsCurrent         bool      `gorm:"not null"`
	Position          int       `gorm:"not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime:false"`
}

func (instanceModel) TableName() string { return "node_instances" }

type userModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"not null"`
}

func (userModel) TableName() string { return "users" }

type groupModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"not null"`
}

func (groupModel) TableName() string { return "groups" }

type membershipModel struct {
	GroupID string `gorm:"primaryKey"`
	UserID  string `gorm:"primaryKey;index"`
}

func (membershipModel) TableName() string { return "group_members" }

func allModels() []any {
	return []any{
		&projectModel{},
		&workflowModel{},
		&nodeModel{},
		&linkModel{},
		&itemModel{},
		&instanceModel{},
		&userModel{},
		&groupModel{},
		&membershipModel{},
	}
}

func toWorkflow(m *workflowModel) *models.WorkflowDescription {
	return &models.WorkflowDescription{
		ID:            m.ID,
		Name:          m.Name,
		ProjectID:     m.ProjectID,
		Version:       m.Version,
		InitialNodeID: m.InitialNodeID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toNode(m *nodeModel) *models.NodeDescription {
	return &models.NodeDescription{
		ID:               m.ID,
		WorkflowID:       m.WorkflowID,
		Title:            m.Title,
		IsFinal:          m.IsFinal,
		AuthorizedUsers:  m.AuthorizedUsers,
		AuthorizedGroups: m.AuthorizedGroups,
	}
}

func toLink(m *linkModel) *models.LinkDescription {
	return &models.LinkDescription{
		ID:            m.ID,
		WorkflowID:    m.WorkflowID,
		Title:         m.Title,
		InitialNodeID: m.InitialNodeID,
		FinalNodeID:   m.FinalNodeID,
		EligibleTypes: m.EligibleTypes,
	}
}

func toItem(m *itemModel) *models.Item {
	return &models.Item{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		WorkflowID: m.WorkflowID,
		Type:       models.ItemType(m.Type),
		Title:      m.Title,
		History:    make([]*models.WorkflowNode, 0),
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toInstance(m *instanceModel) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:                m.ID,
		ItemID:            m.ItemID,
		NodeDescriptionID: m.NodeDescriptionID,
		Responsible:       m.Responsible,
		CreatedAt:         m.CreatedAt,
	}
}
