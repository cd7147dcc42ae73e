// Package repository persists groups, their members and their activities.
package repository

import (
	"context"
	"errors"

	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrGroupExists    = errors.New("group already exists")
)

// DefaultSearchLimit caps search results when the filter sets no limit.
const DefaultSearchLimit = 100

// Repository is the persistence collaborator of the service.
type Repository interface {
	// EditMembers applies every mutation or none. Each mutation must match an
	// existing membership of its user. reqCtx is the caller context of the
	// request; its request source is recorded on every touched membership.
	EditMembers(ctx context.Context, mutations []models.MembershipMutation, reqCtx value.Mapping, actingUserID string) error

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	UpdateGroup(ctx context.Context, update *models.GroupUpdate) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	SearchGroups(ctx context.Context, filter models.SearchFilter) ([]*models.Group, error)

	Ping(ctx context.Context) error
	Close() error
}

// requestSource returns the request source carried by a caller context.
func requestSource(reqCtx value.Mapping) string {
	s, _ := value.String(reqCtx, models.ContextRequestSource)
	return s
}
