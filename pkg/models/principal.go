package models

// User is an actor that executes transitions or is responsible for items.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"      validate:"required,min=1"`
	GroupIDs []string `json:"group_ids"`
}

// Group collects users for node authorization.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required,min=1"`
}
