package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type projectRepository struct {
	p *Persistence
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var row projectModel

	err := r.p.conn(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %s: %w", id, persistence.ErrProjectNotFound)
		}

		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	return &models.Project{ID: row.ID, Name: row.Name, WorkflowID: row.WorkflowID, CreatedAt: row.CreatedAt}, nil
}

func (r *projectRepository) List(ctx context.Context) ([]*models.Project, error) {
	var rows []projectModel

	if err := r.p.conn(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]*models.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, &models.Project{ID: row.ID, Name: row.Name, WorkflowID: row.WorkflowID, CreatedAt: row.CreatedAt})
	}

	return projects, nil
}

func (r *projectRepository) Save(ctx context.Context, project *models.Project) error {
	row := projectModel{ID: project.ID, Name: project.Name, WorkflowID: project.WorkflowID, CreatedAt: project.CreatedAt}

	err := r.p.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "workflow_id"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", project.ID, err)
	}

	return nil
}

type principalRepository struct {
	p *Persistence
}

func (r *principalRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row userModel

	err := r.p.conn(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	groupIDs := make([]string, 0)

	err = r.p.conn(ctx).Model(&membershipModel{}).Where("user_id = ?", id).Order("group_id").Pluck("group_id", &groupIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load group memberships: %w", err)
	}

	return &models.User{ID: row.ID, Name: row.Name, GroupIDs: groupIDs}, nil
}

// SaveUser upserts the user and replaces its group memberships.
func (r *principalRepository) SaveUser(ctx context.Context, user *models.User) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		err := tx.conn(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&userModel{ID: user.ID, Name: user.Name}).Error
		if err != nil {
			return fmt.Errorf("failed to save user %s: %w", user.ID, err)
		}

		if err := tx.conn(ctx).Where("user_id = ?", user.ID).Delete(&membershipModel{}).Error; err != nil {
			return fmt.Errorf("failed to reset group memberships of %s: %w", user.ID, err)
		}

		for _, groupID := range user.GroupIDs {
			if err := tx.conn(ctx).Create(&membershipModel{GroupID: groupID, UserID: user.ID}).Error; err != nil {
				return fmt.Errorf("failed to add %s to group %s: %w", user.ID, groupID, err)
			}
		}

		return nil
	})
}

func (r *principalRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var row groupModel

	err := r.p.conn(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("group %s: %w", id, persistence.ErrGroupNotFound)
		}

		return nil, fmt.Errorf("failed to load group: %w", err)
	}

	return &models.Group{ID: row.ID, Name: row.Name}, nil
}

func (r *principalRepository) SaveGroup(ctx context.Context, group *models.Group) error {
	err := r.p.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&groupModel{ID: group.ID, Name: group.Name}).Error
	if err != nil {
		return fmt.Errorf("failed to save group %s: %w", group.ID, err)
	}

	return nil
}
