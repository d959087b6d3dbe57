package models

import "time"

// Project owns items and exactly one private workflow description.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"        validate:"required,min=3"`
	WorkflowID string    `json:"workflow_id"`
	CreatedAt  time.Time `json:"created_at"`
}
