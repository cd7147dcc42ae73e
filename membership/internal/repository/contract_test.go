package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func seedGroup(t *testing.T, repo Repository, id string, members ...string) *models.Group {
	t.Helper()
	g := &models.Group{
		ID:        id,
		Name:      "group " + id,
		Status:    models.GroupStatusActive,
		CreatedBy: "owner",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Activities: []models.ActivityRef{
			{ID: "a1", Type: "course"},
		},
	}
	for _, m := range members {
		g.Members = append(g.Members, models.Member{UserID: m, Role: models.MemberRoleMember, Status: models.MemberStatusActive})
	}
	require.NoError(t, repo.CreateGroup(context.Background(), g))
	return g
}

// testRepositoryContract exercises behavior every Repository must share.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedGroup(t, repo, "g1", "u1", "u2")

		g, err := repo.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "group g1", g.Name)
		assert.Equal(t, models.GroupStatusActive, g.Status)
		assert.Len(t, g.Members, 2)
		assert.Equal(t, []models.ActivityRef{{ID: "a1", Type: "course"}}, g.Activities)
		assert.Equal(t, "owner", g.Members[0].CreatedBy)
	})

	t.Run("duplicate create", func(t *testing.T) {
		repo := newRepo(t)
		seedGroup(t, repo, "g1")
		err := repo.CreateGroup(context.Background(), &models.Group{ID: "g1", Name: "again", CreatedBy: "owner"})
		assert.ErrorIs(t, err, ErrGroupExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := newRepo(t).GetGroup(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("edit members", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedGroup(t, repo, "g1", "u1")
		seedGroup(t, repo, "g2", "u1", "u2")

		err := repo.EditMembers(ctx, []models.MembershipMutation{
			{GroupID: "g1", UserID: "u1", Visited: boolPtr(true)},
			{GroupID: "g2", UserID: "u1"},
		}, value.Mapping{"userId": "u1", "requestSource": "mobile"}, "u1")
		require.NoError(t, err)

		g1, err := repo.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.True(t, g1.Members[0].Visited)
		assert.Equal(t, "mobile", g1.Members[0].UpdatedSource)
		assert.Equal(t, "u1", g1.UpdatedBy)

		g2, err := repo.GetGroup(ctx, "g2")
		require.NoError(t, err)
		for _, m := range g2.Members {
			assert.False(t, m.Visited, "mutation without visited keeps the stored flag")
		}
	})

	t.Run("edit members is all or nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedGroup(t, repo, "g1", "u1")

		err := repo.EditMembers(ctx, []models.MembershipMutation{
			{GroupID: "g1", UserID: "u1", Visited: boolPtr(true)},
			{GroupID: "g9", UserID: "u1", Visited: boolPtr(true)},
		}, nil, "u1")
		assert.ErrorIs(t, err, ErrMemberNotFound)

		g1, err := repo.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.False(t, g1.Members[0].Visited)
	})

	t.Run("update group", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedGroup(t, repo, "g1", "u1", "u2")

		g, err := repo.UpdateGroup(ctx, &models.GroupUpdate{
			GroupID: "g1",
			Name:    strPtr("renamed"),
			Status:  models.GroupStatusSuspended,
			Members: models.MemberChanges{
				Add:    []models.Member{{UserID: "u3"}},
				Edit:   []models.Member{{UserID: "u1", Role: models.MemberRoleAdmin}},
				Remove: []string{"u2"},
			},
			Activities: models.ActivityChanges{
				Add:    []models.ActivityRef{{ID: "a2", Type: "event"}},
				Remove: []string{"a1"},
			},
			UpdatedBy: "owner",
		})
		require.NoError(t, err)
		assert.Equal(t, "renamed", g.Name)
		assert.Equal(t, models.GroupStatusSuspended, g.Status)
		assert.Equal(t, []models.ActivityRef{{ID: "a2", Type: "event"}}, g.Activities)

		roles := map[string]string{}
		for _, m := range g.Members {
			roles[m.UserID] = m.Role
		}
		assert.Equal(t, map[string]string{"u1": models.MemberRoleAdmin, "u3": models.MemberRoleMember}, roles)
	})

	t.Run("update missing group", func(t *testing.T) {
		_, err := newRepo(t).UpdateGroup(context.Background(), &models.GroupUpdate{GroupID: "nope", UpdatedBy: "x"})
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedGroup(t, repo, "g1", "u1")

		require.NoError(t, repo.DeleteGroup(ctx, "g1"))
		_, err := repo.GetGroup(ctx, "g1")
		assert.ErrorIs(t, err, ErrGroupNotFound)
		assert.ErrorIs(t, repo.DeleteGroup(ctx, "g1"), ErrGroupNotFound)
	})

	t.Run("search", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		seedGroup(t, repo, "g1", "u1")
		seedGroup(t, repo, "g2", "u1", "u2")
		seedGroup(t, repo, "g3", "u2")
		_, err := repo.UpdateGroup(ctx, &models.GroupUpdate{GroupID: "g3", Status: models.GroupStatusSuspended, UpdatedBy: "owner"})
		require.NoError(t, err)

		tests := []struct {
			name   string
			filter models.SearchFilter
			want   []string
		}{
			{name: "no filter", filter: models.SearchFilter{}, want: []string{"g1", "g2", "g3"}},
			{name: "by user", filter: models.SearchFilter{UserID: "u2"}, want: []string{"g2", "g3"}},
			{name: "by ids", filter: models.SearchFilter{GroupIDs: []string{"g3", "g1"}}, want: []string{"g1", "g3"}},
			{name: "by status", filter: models.SearchFilter{Status: models.GroupStatusSuspended}, want: []string{"g3"}},
			{name: "combined", filter: models.SearchFilter{UserID: "u1", Status: models.GroupStatusActive}, want: []string{"g1", "g2"}},
			{name: "limit", filter: models.SearchFilter{Limit: 1}, want: []string{"g1"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				groups, err := repo.SearchGroups(ctx, tt.filter)
				require.NoError(t, err)
				var ids []string
				for _, g := range groups {
					ids = append(ids, g.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})
}
