// Package web provides HTTP handlers and REST API endpoints for workflows, projects and items.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/services"
	"github.com/dukex/itemflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService   *services.Workflow
	projectService    *services.Project
	itemService       *services.Item
	transitionService *services.Transition
	principalService  *services.Principal
	validator         *validator.Validate
	logger            *slog.Logger
}

// Services groups the service layer the handlers delegate to.
type Services struct {
	Workflow   *services.Workflow
	Project    *services.Project
	Item       *services.Item
	Transition *services.Transition
	Principal  *services.Principal
}

func NewAPIHandlers(svc Services, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		workflowService:   svc.Workflow,
		projectService:    svc.Project,
		itemService:       svc.Item,
		transitionService: svc.Transition,
		principalService:  svc.Principal,
		validator:         validator,
		logger:            logger.With("module", "api_handlers"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Itemflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Itemflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// bind decodes and validates the JSON body, writing the 400 response itself.
// A false result means the response is already written.
func (h *APIHandlers) bind(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return false, badRequest(c, err.Error())
	}

	return true, nil
}

func (h *APIHandlers) fail(c fiber.Ctx, err error) error {
	return handleServiceError(c, h.logger, err)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{ProjectID: c.Query("project_id")}

	if templates := c.Query("templates"); templates != "" {
		templatesOnly, err := strconv.ParseBool(templates)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		req.TemplatesOnly = templatesOnly
	}

	workflows, err := h.workflowService.List(c.Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	description, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(description)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	created, err := h.workflowService.CreateTemplate(c.Context(), req.ToDescription())
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	var req NodeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	node, err := h.workflowService.AddNode(c.Context(), c.Params("id"), req.toInput())
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req NodeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	node, err := h.workflowService.EditNode(c.Context(), c.Params("id"), c.Params("nodeId"), req.toInput())
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	result, err := h.workflowService.DeleteNodes(c.Context(), c.Params("id"), []string{c.Params("nodeId")})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) DeleteNodes(c fiber.Ctx) error {
	var req DeleteNodesRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.workflowService.DeleteNodes(c.Context(), c.Params("id"), req.NodeIDs)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) SetInitialNode(c fiber.Ctx) error {
	var req SetInitialNodeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	if err := h.workflowService.SetInitialNode(c.Context(), c.Params("id"), req.NodeID); err != nil {
		return h.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddLink(c fiber.Ctx) error {
	var req CreateLinkRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	link, err := h.workflowService.AddLink(c.Context(), c.Params("id"), workflow.LinkInput{
		Title:         req.Title,
		InitialNodeID: req.InitialNodeID,
		FinalNodeID:   req.FinalNodeID,
		EligibleTypes: req.EligibleTypes,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

func (h *APIHandlers) UpdateLink(c fiber.Ctx) error {
	var req UpdateLinkRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	link, err := h.workflowService.EditLink(c.Context(), c.Params("id"), c.Params("linkId"), workflow.LinkInput{
		Title:         req.Title,
		EligibleTypes: req.EligibleTypes,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(link)
}

func (h *APIHandlers) DeleteLink(c fiber.Ctx) error {
	if err := h.workflowService.DeleteLinks(c.Context(), c.Params("id"), []string{c.Params("linkId")}); err != nil {
		return h.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteLinks(c fiber.Ctx) error {
	var req DeleteLinksRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	if err := h.workflowService.DeleteLinks(c.Context(), c.Params("id"), req.LinkIDs); err != nil {
		return h.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetProjects(c fiber.Ctx) error {
	projects, err := h.projectService.List(c.Context())
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"projects":    projects,
		"total_count": len(projects),
	})
}

func (h *APIHandlers) GetProject(c fiber.Ctx) error {
	project, err := h.projectService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(project)
}

func (h *APIHandlers) CreateProject(c fiber.Ctx) error {
	var req CreateProjectRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	project, err := h.projectService.Create(c.Context(), services.CreateProjectRequest{
		Name:       req.Name,
		TemplateID: req.TemplateID,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(project)
}

func (h *APIHandlers) GetProjectItems(c fiber.Ctx) error {
	items, err := h.itemService.ListByProject(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"items":       items,
		"total_count": len(items),
	})
}

func (h *APIHandlers) CreateItem(c fiber.Ctx) error {
	var req CreateItemRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	item, err := h.itemService.Create(c.Context(), services.CreateItemRequest{
		ProjectID: c.Params("id"),
		Type:      req.Type,
		Title:     req.Title,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *APIHandlers) GetItem(c fiber.Ctx) error {
	item, err := h.itemService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) UpdateItem(c fiber.Ctx) error {
	var req UpdateItemRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	item, err := h.itemService.UpdateTitle(c.Context(), c.Params("id"), req.Version, req.Title)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) DeleteItem(c fiber.Ctx) error {
	if err := h.itemService.Delete(c.Context(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetNextNodes(c fiber.Ctx) error {
	nodes, err := h.itemService.NextNodes(c.Context(), c.Params("id"), c.Query("sort"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"nodes": nodes,
	})
}

func (h *APIHandlers) TransitionItem(c fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req TransitionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	item, err := h.transitionService.Transition(c.Context(), services.TransitionRequest{
		ItemID:       c.Params("id"),
		Version:      req.Version,
		TargetNodeID: req.TargetNodeID,
		LinkID:       req.LinkID,
		ActorID:      actorID,
		Responsible:  req.Responsible,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) BulkTransition(c fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req BulkTransitionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.transitionService.Bulk(c.Context(), services.BulkTransitionRequest{
		ItemIDs:      req.ItemIDs,
		TargetNodeID: req.TargetNodeID,
		ActorID:      actorID,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CreateUser(c fiber.Ctx) error {
	var req CreateUserRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	user, err := h.principalService.CreateUser(c.Context(), &models.User{
		ID:       req.ID,
		Name:     req.Name,
		GroupIDs: req.GroupIDs,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *APIHandlers) GetUser(c fiber.Ctx) error {
	user, err := h.principalService.FetchUser(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(user)
}

func (h *APIHandlers) CreateGroup(c fiber.Ctx) error {
	var req CreateGroupRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	group, err := h.principalService.CreateGroup(c.Context(), &models.Group{
		ID:   req.ID,
		Name: req.Name,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *APIHandlers) GetGroup(c fiber.Ctx) error {
	group, err := h.principalService.FetchGroup(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(group)
}

func (h *APIHandlers) AddGroupMember(c fiber.Ctx) error {
	var req AddMemberRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	user, err := h.principalService.AddMember(c.Context(), c.Params("id"), req.UserID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(user)
}
