package services

import (
	"context"
	"slices"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/google/uuid"
)

// Principal manages users and groups.
type Principal struct {
	persistence persistence.Persistence
	settings    settings
}

func NewPrincipal(persistence persistence.Persistence, opts ...Option) *Principal {
	return &Principal{
		persistence: persistence,
		settings:    newSettings("principal_service", opts),
	}
}

// CreateUser stores a user. Every group it lists must exist.
func (p *Principal) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil || user.Name == "" {
		return nil, NewValidationError("CreateUser", "invalid_name", "user name is required", ErrInvalidRequest)
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	if user.GroupIDs == nil {
		user.GroupIDs = []string{}
	}

	err := p.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		for _, groupID := range user.GroupIDs {
			if _, err := tx.PrincipalRepository().GetGroup(ctx, groupID); err != nil {
				return err
			}
		}

		return tx.PrincipalRepository().SaveUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (p *Principal) FetchUser(ctx context.Context, id string) (*models.User, error) {
	return p.persistence.PrincipalRepository().GetUser(ctx, id)
}

func (p *Principal) CreateGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	if group == nil || group.Name == "" {
		return nil, NewValidationError("CreateGroup", "invalid_name", "group name is required", ErrInvalidRequest)
	}

	if group.ID == "" {
		group.ID = uuid.NewString()
	}

	if err := p.persistence.PrincipalRepository().SaveGroup(ctx, group); err != nil {
		return nil, err
	}

	return group, nil
}

func (p *Principal) FetchGroup(ctx context.Context, id string) (*models.Group, error) {
	return p.persistence.PrincipalRepository().GetGroup(ctx, id)
}

// AddMember puts the user into the group; adding an existing member is a no-op.
func (p *Principal) AddMember(ctx context.Context, groupID, userID string) (*models.User, error) {
	var user *models.User

	err := p.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Persistence) error {
		if _, err := tx.PrincipalRepository().GetGroup(ctx, groupID); err != nil {
			return err
		}

		var err error

		user, err = tx.PrincipalRepository().GetUser(ctx, userID)
		if err != nil {
			return err
		}

		if slices.Contains(user.GroupIDs, groupID) {
			return nil
		}

		user.GroupIDs = append(user.GroupIDs, groupID)
		slices.Sort(user.GroupIDs)

		return tx.PrincipalRepository().SaveUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	p.settings.logger.InfoContext(ctx, "User added to group", "user_id", userID, "group_id", groupID)

	return user, nil
}
