package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	testRepositoryContract(t, func(t *testing.T) Repository {
		return NewMemoryRepository()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seeded := seedGroup(t, repo, "g1", "u1")

	// Mutating the caller's value after create must not leak into the store.
	seeded.Members[0].Role = "owner"

	g, err := repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	g.Name = "changed"

	again, err := repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "group g1", again.Name)
	assert.Equal(t, "member", again.Members[0].Role)
}
