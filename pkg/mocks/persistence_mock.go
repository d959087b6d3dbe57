package mocks

import (
	"context"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence. Its
// Transaction hands the mock itself to the callback unless an error is
// configured for the call.
type MockPersistence struct {
	mock.Mock

	Workflows  *MockWorkflowRepository
	Nodes      *MockNodeRepository
	Links      *MockLinkRepository
	Items      *MockItemRepository
	Projects   *MockProjectRepository
	Principals *MockPrincipalRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:  &MockWorkflowRepository{},
		Nodes:      &MockNodeRepository{},
		Links:      &MockLinkRepository{},
		Items:      &MockItemRepository{},
		Projects:   &MockProjectRepository{},
		Principals: &MockPrincipalRepository{},
	}
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) NodeRepository() persistence.NodeRepository {
	return m.Nodes
}

func (m *MockPersistence) LinkRepository() persistence.LinkRepository {
	return m.Links
}

func (m *MockPersistence) ItemRepository() persistence.ItemRepository {
	return m.Items
}

func (m *MockPersistence) ProjectRepository() persistence.ProjectRepository {
	return m.Projects
}

func (m *MockPersistence) PrincipalRepository() persistence.PrincipalRepository {
	return m.Principals
}

func (m *MockPersistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Persistence) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}

	return fn(ctx, m)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.WorkflowDescription, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDescription), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDescription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDescription), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDescription) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) UpdateAttributes(ctx context.Context, workflow *models.WorkflowDescription) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockNodeRepository is a mock implementation of persistence.NodeRepository interface.
type MockNodeRepository struct {
	mock.Mock
}

func (m *MockNodeRepository) GetNode(ctx context.Context, workflowID, nodeID string) (*models.NodeDescription, error) {
	args := m.Called(ctx, workflowID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.NodeDescription), args.Error(1)
}

func (m *MockNodeRepository) SaveNode(ctx context.Context, workflowID string, node *models.NodeDescription) error {
	args := m.Called(ctx, workflowID, node)

	return args.Error(0)
}

func (m *MockNodeRepository) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	args := m.Called(ctx, workflowID, nodeID)

	return args.Error(0)
}

// MockLinkRepository is a mock implementation of persistence.LinkRepository interface.
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) GetLink(ctx context.Context, workflowID, linkID string) (*models.LinkDescription, error) {
	args := m.Called(ctx, workflowID, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.LinkDescription), args.Error(1)
}

func (m *MockLinkRepository) SaveLink(ctx context.Context, workflowID string, link *models.LinkDescription) error {
	args := m.Called(ctx, workflowID, link)

	return args.Error(0)
}

func (m *MockLinkRepository) DeleteLink(ctx context.Context, workflowID, linkID string) error {
	args := m.Called(ctx, workflowID, linkID)

	return args.Error(0)
}

func (m *MockLinkRepository) FindLinksFrom(ctx context.Context, workflowID, nodeID string) ([]*models.LinkDescription, error) {
	args := m.Called(ctx, workflowID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.LinkDescription), args.Error(1)
}

// MockItemRepository is a mock implementation of persistence.ItemRepository interface.
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Item), args.Error(1)
}

func (m *MockItemRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Item, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Item), args.Error(1)
}

func (m *MockItemRepository) Create(ctx context.Context, item *models.Item) error {
	args := m.Called(ctx, item)

	return args.Error(0)
}

func (m *MockItemRepository) Update(ctx context.Context, item *models.Item, expectedVersion int64) error {
	args := m.Called(ctx, item, expectedVersion)

	return args.Error(0)
}

func (m *MockItemRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockItemRepository) FindHistoricalNodesReferencing(ctx context.Context, nodeDescriptionID string) ([]*models.WorkflowNode, error) {
	args := m.Called(ctx, nodeDescriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowNode), args.Error(1)
}

// MockProjectRepository is a mock implementation of persistence.ProjectRepository interface.
type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectRepository) List(ctx context.Context) ([]*models.Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Project), args.Error(1)
}

func (m *MockProjectRepository) Save(ctx context.Context, project *models.Project) error {
	args := m.Called(ctx, project)

	return args.Error(0)
}

// MockPrincipalRepository is a mock implementation of persistence.PrincipalRepository interface.
type MockPrincipalRepository struct {
	mock.Mock
}

func (m *MockPrincipalRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockPrincipalRepository) SaveUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)

	return args.Error(0)
}

func (m *MockPrincipalRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockPrincipalRepository) SaveGroup(ctx context.Context, group *models.Group) error {
	args := m.Called(ctx, group)

	return args.Error(0)
}
