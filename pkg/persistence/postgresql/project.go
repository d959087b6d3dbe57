package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
)

type projectRepository struct {
	p *Persistence
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT id, name, workflow_id, created_at FROM projects WHERE id = $1`

	project, err := scanProject(r.p.querier().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", id, persistence.ErrProjectNotFound)
		}

		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	return project, nil
}

func (r *projectRepository) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := r.p.querier().QueryContext(ctx, `SELECT id, name, workflow_id, created_at FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	projects := make([]*models.Project, 0)

	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func (r *projectRepository) Save(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (id, name, workflow_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			workflow_id = EXCLUDED.workflow_id
	`

	_, err := r.p.querier().ExecContext(ctx, query, project.ID, project.Name, nullable(project.WorkflowID), project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", project.ID, err)
	}

	return nil
}

func scanProject(row scanner) (*models.Project, error) {
	var (
		project    models.Project
		workflowID sql.NullString
	)

	if err := row.Scan(&project.ID, &project.Name, &workflowID, &project.CreatedAt); err != nil {
		return nil, err
	}

	project.WorkflowID = workflowID.String

	return &project, nil
}

type principalRepository struct {
	p *Persistence
}

func (r *principalRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	err := r.p.querier().QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = $1`, id).Scan(&user.ID, &user.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	rows, err := r.p.querier().QueryContext(ctx, `SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY group_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query group memberships: %w", err)
	}

	defer r.p.closeRows(ctx, rows)

	user.GroupIDs = make([]string, 0)

	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, fmt.Errorf("failed to scan group membership: %w", err)
		}

		user.GroupIDs = append(user.GroupIDs, groupID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group memberships: %w", err)
	}

	return &user, nil
}

// SaveUser upserts the user and replaces its group memberships.
func (r *principalRepository) SaveUser(ctx context.Context, user *models.User) error {
	return r.p.atomically(ctx, func(tx *Persistence) error {
		query := `
			INSERT INTO users (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`

		if _, err := tx.querier().ExecContext(ctx, query, user.ID, user.Name); err != nil {
			return fmt.Errorf("failed to save user %s: %w", user.ID, err)
		}

		if _, err := tx.querier().ExecContext(ctx, `DELETE FROM group_members WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("failed to reset group memberships of %s: %w", user.ID, err)
		}

		for _, groupID := range user.GroupIDs {
			_, err := tx.querier().ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, groupID, user.ID)
			if err != nil {
				return fmt.Errorf("failed to add %s to group %s: %w", user.ID, groupID, err)
			}
		}

		return nil
	})
}

func (r *principalRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group

	err := r.p.querier().QueryRowContext(ctx, `SELECT id, name FROM groups WHERE id = $1`, id).Scan(&group.ID, &group.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", id, persistence.ErrGroupNotFound)
		}

		return nil, fmt.Errorf("failed to scan group: %w", err)
	}

	return &group, nil
}

func (r *principalRepository) SaveGroup(ctx context.Context, group *models.Group) error {
	query := `
		INSERT INTO groups (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`

	if _, err := r.p.querier().ExecContext(ctx, query, group.ID, group.Name); err != nil {
		return fmt.Errorf("failed to save group %s: %w", group.ID, err)
	}

	return nil
}
