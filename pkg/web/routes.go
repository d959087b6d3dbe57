package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	workflows := router.Group("/workflows")
	workflows.Get("/", h.GetWorkflows)
	workflows.Post("/", h.CreateWorkflow)
	workflows.Get("/:id", h.GetWorkflow)
	workflows.Delete("/:id", h.DeleteWorkflow)
	workflows.Put("/:id/initial-node", h.SetInitialNode)
	workflows.Post("/:id/nodes", h.AddNode)
	workflows.Delete("/:id/nodes", h.DeleteNodes)
	workflows.Patch("/:id/nodes/:nodeId", h.UpdateNode)
	workflows.Delete("/:id/nodes/:nodeId", h.DeleteNode)
	workflows.Post("/:id/links", h.AddLink)
	workflows.Delete("/:id/links", h.DeleteLinks)
	workflows.Patch("/:id/links/:linkId", h.UpdateLink)
	workflows.Delete("/:id/links/:linkId", h.DeleteLink)

	projects := router.Group("/projects")
	projects.Get("/", h.GetProjects)
	projects.Post("/", h.CreateProject)
	projects.Get("/:id", h.GetProject)
	projects.Get("/:id/items", h.GetProjectItems)
	projects.Post("/:id/items", h.CreateItem)

	items := router.Group("/items")
	items.Post("/transitions", h.BulkTransition)
	items.Get("/:id", h.GetItem)
	items.Patch("/:id", h.UpdateItem)
	items.Delete("/:id", h.DeleteItem)
	items.Get("/:id/next-nodes", h.GetNextNodes)
	items.Post("/:id/transitions", h.TransitionItem)

	router.Post("/users", h.CreateUser)
	router.Get("/users/:id", h.GetUser)
	router.Post("/groups", h.CreateGroup)
	router.Get("/groups/:id", h.GetGroup)
	router.Post("/groups/:id/members", h.AddGroupMember)
}
