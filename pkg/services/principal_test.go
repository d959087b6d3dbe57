package services

import (
	"testing"

	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_UsersAndGroups(t *testing.T) {
	f := newFixture(t)
	service := NewPrincipal(f.store, f.opts...)

	group, err := service.CreateGroup(t.Context(), &models.Group{Name: "Testers"})
	require.NoError(t, err)
	assert.NotEmpty(t, group.ID)

	user, err := service.CreateUser(t.Context(), &models.User{Name: "Carol", GroupIDs: []string{testutil.DevelopersGroup}})
	require.NoError(t, err)

	member, err := service.AddMember(t.Context(), group.ID, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testutil.DevelopersGroup, group.ID}, member.GroupIDs)

	again, err := service.AddMember(t.Context(), group.ID, user.ID)
	require.NoError(t, err)
	assert.Len(t, again.GroupIDs, 2)

	fetched, err := service.FetchUser(t.Context(), user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, member.GroupIDs, fetched.GroupIDs)

	fetchedGroup, err := service.FetchGroup(t.Context(), group.ID)
	require.NoError(t, err)
	assert.Equal(t, "Testers", fetchedGroup.Name)
}

func TestPrincipal_Rejections(t *testing.T) {
	f := newFixture(t)
	service := NewPrincipal(f.store, f.opts...)

	_, err := service.CreateUser(t.Context(), &models.User{})
	assert.True(t, IsValidationError(err))

	_, err = service.CreateUser(t.Context(), &models.User{Name: "Dan", GroupIDs: []string{"ghosts"}})
	assert.True(t, IsNotFound(err))

	_, err = service.CreateGroup(t.Context(), nil)
	assert.True(t, IsValidationError(err))

	_, err = service.AddMember(t.Context(), "ghosts", "alice")
	assert.True(t, IsNotFound(err))

	_, err = service.AddMember(t.Context(), testutil.DevelopersGroup, "nobody")
	assert.True(t, IsNotFound(err))

	_, err = service.FetchUser(t.Context(), "nobody")
	assert.True(t, IsNotFound(err))
}
