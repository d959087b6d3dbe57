// Package models defines the core domain models for item workflow tracking
package models

import "time"

// WorkflowDescription is the graph template of node and link descriptions.
// A description without ProjectID is a system template; project descriptions are
// private clones and are never shared between projects.
type WorkflowDescription struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"                      validate:"required,min=3"`
	ProjectID     string             `json:"project_id,omitempty"`
	Version       int64              `json:"version"`
	InitialNodeID string             `json:"initial_node_id,omitempty"`
	Nodes         []*NodeDescription `json:"nodes"`
	Links         []*LinkDescription `json:"links"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IsTemplate reports whether the description is a shared system template.
func (w *WorkflowDescription) IsTemplate() bool {
	return w.ProjectID == ""
}
