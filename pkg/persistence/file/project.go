package file

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
)

type projectRepository struct {
	docs documents
}

func (pr *projectRepository) GetByID(_ context.Context, id string) (*models.Project, error) {
	project, err := load[models.Project](pr.docs, kindProjects, id)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("project %s: %w", id, persistence.ErrProjectNotFound)
		}

		return nil, fmt.Errorf("failed to fetch project %s: %w", id, err)
	}

	return project, nil
}

func (pr *projectRepository) List(_ context.Context) ([]*models.Project, error) {
	projects, err := loadAll[models.Project](pr.docs, kindProjects)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	slices.SortFunc(projects, func(a, b *models.Project) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return projects, nil
}

func (pr *projectRepository) Save(_ context.Context, project *models.Project) error {
	return store(pr.docs, kindProjects, project.ID, project)
}

type principalRepository struct {
	docs documents
}

func (pr *principalRepository) GetUser(_ context.Context, id string) (*models.User, error) {
	user, err := load[models.User](pr.docs, kindUsers, id)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("user %s: %w", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}

	return user, nil
}

func (pr *principalRepository) SaveUser(_ context.Context, user *models.User) error {
	return store(pr.docs, kindUsers, user.ID, user)
}

func (pr *principalRepository) GetGroup(_ context.Context, id string) (*models.Group, error) {
	group, err := load[models.Group](pr.docs, kindGroups, id)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("group %s: %w", id, persistence.ErrGroupNotFound)
		}

		return nil, fmt.Errorf("failed to fetch group %s: %w", id, err)
	}

	return group, nil
}

func (pr *principalRepository) SaveGroup(_ context.Context, group *models.Group) error {
	return store(pr.docs, kindGroups, group.ID, group)
}
