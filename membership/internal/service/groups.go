package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/cache"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
	"github.com/cohortlabs/cohort-stack/membership/internal/repository"
	"github.com/cohortlabs/cohort-stack/membership/internal/telemetry"
)

// GroupService manages the groups themselves.
type GroupService struct {
	*base
	now func() time.Time
}

func NewGroupService(cfg Config) *GroupService {
	return &GroupService{base: newBase(cfg), now: time.Now}
}

// createRequest is the typed view of a create payload.
type createRequest struct {
	Name        string               `mapstructure:"name"`
	Description string               `mapstructure:"description"`
	Members     []models.Member      `mapstructure:"members"`
	Activities  []models.ActivityRef `mapstructure:"activities"`
}

// CreateGroup stores a new active group. The caller becomes an admin member
// unless the payload already lists them.
func (s *GroupService) CreateGroup(ctx context.Context, req *models.Request) (*models.Response, error) {
	start := time.Now()
	group, err := s.createGroup(ctx, req)
	if err != nil {
		err = s.fail(ctx, req, err, errcode.CodeCreateFailed)
	}
	observe(models.OperationCreateGroup, start, err)

	var groupID string
	if group != nil {
		groupID = group.ID
	}
	s.emitter.Emit(ctx, req, telemetry.Input{
		Path:          telemetry.PathCreate,
		Success:       err == nil,
		GroupID:       groupID,
		ActorID:       req.RequestedBy(),
		RequestSource: req.RequestSource(),
		Requested:     req.Payload,
	})

	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "group created", logging.GroupID(group.ID), logging.UserID(group.CreatedBy))
	return models.NewResponse(req.ID, map[string]any{"groupId": group.ID}), nil
}

func (s *GroupService) createGroup(ctx context.Context, req *models.Request) (*models.Group, error) {
	if err := s.validators.GroupCreate(ctx, req.Payload); err != nil {
		return nil, err
	}
	var in createRequest
	if err := decode(value.Canonical(req.Payload), &in); err != nil {
		return nil, errcode.Wrap(errcode.ParamDataType("request", "Map"), errcode.CodeCreateInvalid)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate group ID: %w", err)
	}
	creator := req.RequestedBy()
	group := &models.Group{
		ID:          id.String(),
		Name:        in.Name,
		Description: in.Description,
		Status:      models.GroupStatusActive,
		Members:     in.Members,
		Activities:  in.Activities,
		CreatedBy:   creator,
		CreatedAt:   s.now().UTC(),
	}
	if creator != "" && !hasMember(group.Members, creator) {
		group.Members = append(group.Members, models.Member{
			UserID: creator,
			Role:   models.MemberRoleAdmin,
			Status: models.MemberStatusActive,
		})
	}

	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return group, err
	}
	s.invalidate(ctx, memberUserKeys(group.Members))
	return group, nil
}

// UpdateGroup applies renames, status transitions and member or activity
// edits to an existing group.
func (s *GroupService) UpdateGroup(ctx context.Context, req *models.Request) (*models.Response, error) {
	start := time.Now()
	groupID, _ := value.String(req.Payload, "groupId")
	stored, err := s.updateGroup(ctx, req, groupID)
	if err != nil {
		err = s.fail(ctx, req, err, errcode.CodeUpdateFailed)
	}
	observe(models.OperationUpdateGroup, start, err)

	s.emitter.Emit(ctx, req, telemetry.Input{
		Path:          telemetry.PathUpdate,
		Success:       err == nil,
		GroupID:       groupID,
		ActorID:       req.RequestedBy(),
		RequestSource: req.RequestSource(),
		Stored:        stored.Snapshot(),
		Requested:     req.Payload,
	})

	if err != nil {
		return nil, err
	}
	return models.NewResponse(req.ID, map[string]any{"response": "SUCCESS"}), nil
}

// updateGroup returns the group as stored before the change, when known.
func (s *GroupService) updateGroup(ctx context.Context, req *models.Request, groupID string) (*models.Group, error) {
	if err := s.validators.GroupUpdate(ctx, req.Payload); err != nil {
		return nil, err
	}
	var update models.GroupUpdate
	if err := decode(value.Canonical(req.Payload), &update); err != nil {
		return nil, errcode.Wrap(errcode.ParamDataType("request", "Map"), errcode.CodeUpdateInvalid)
	}
	update.UpdatedBy = req.RequestedBy()

	stored, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateGroup(ctx, &update)
	if err != nil {
		return stored, err
	}

	if !update.Members.Empty() {
		keys := []string{cache.GroupMembersKey(groupID)}
		keys = append(keys, memberUserKeys(update.Members.Add)...)
		keys = append(keys, memberUserKeys(update.Members.Edit)...)
		for _, id := range update.Members.Remove {
			keys = append(keys, cache.UserKey(id))
		}
		s.invalidate(ctx, keys)
	}
	s.logger.InfoContext(ctx, "group updated", logging.GroupID(updated.ID))
	return stored, nil
}

// DeleteGroup removes a group together with its members and activities.
func (s *GroupService) DeleteGroup(ctx context.Context, req *models.Request) (*models.Response, error) {
	start := time.Now()
	groupID, _ := value.String(req.Payload, "groupId")
	stored, err := s.deleteGroup(ctx, req, groupID)
	if err != nil {
		err = s.fail(ctx, req, err, errcode.CodeDeleteFailed)
	}
	observe(models.OperationDeleteGroup, start, err)

	s.emitter.Emit(ctx, req, telemetry.Input{
		Path:      telemetry.PathDelete,
		Success:   err == nil,
		GroupID:   groupID,
		ActorID:   req.RequestedBy(),
		Stored:    stored.Snapshot(),
		Requested: req.Payload,
	})

	if err != nil {
		return nil, err
	}
	return models.NewResponse(req.ID, map[string]any{"response": "SUCCESS"}), nil
}

func (s *GroupService) deleteGroup(ctx context.Context, req *models.Request, groupID string) (*models.Group, error) {
	if err := s.validators.GroupDelete(ctx, req.Payload); err != nil {
		return nil, err
	}
	stored, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteGroup(ctx, groupID); err != nil {
		return stored, err
	}
	keys := append([]string{cache.GroupMembersKey(groupID)}, memberUserKeys(stored.Members)...)
	s.invalidate(ctx, keys)
	s.logger.InfoContext(ctx, "group deleted", logging.GroupID(groupID))
	return stored, nil
}

// SearchGroups lists groups matching the request filters.
func (s *GroupService) SearchGroups(ctx context.Context, req *models.Request) (*models.Response, error) {
	start := time.Now()
	groups, err := s.searchGroups(ctx, req)
	if err != nil {
		err = s.fail(ctx, req, err, errcode.CodeSearchFailed)
	}
	observe(models.OperationSearchGroups, start, err)
	if err != nil {
		return nil, err
	}

	if groups == nil {
		groups = []*models.Group{}
	}
	return models.NewResponse(req.ID, map[string]any{
		"group": groups,
		"count": len(groups),
	}), nil
}

func (s *GroupService) searchGroups(ctx context.Context, req *models.Request) ([]*models.Group, error) {
	payload, err := s.validators.GroupSearch(ctx, req.Payload)
	if err != nil {
		return nil, err
	}
	var filter models.SearchFilter
	if err := decode(value.Canonical(payload["filters"]), &filter); err != nil {
		return nil, errcode.Wrap(errcode.ParamDataType("request.filters", "Map"), errcode.CodeSearchInvalid)
	}
	return s.repo.SearchGroups(ctx, filter)
}

// fail logs the request and classifies err under code.
func (s *GroupService) fail(ctx context.Context, req *models.Request, err error, code string) error {
	logger := s.logger.With(logging.Operation(req.Operation))
	logger.DebugContext(ctx, "group request failed", "request", req.Payload)

	if errors.Is(err, repository.ErrGroupNotFound) {
		groupID, _ := value.String(req.Payload, "groupId")
		err = errcode.InvalidParamValue(groupID, "request.groupId").WithCode(code)
	}
	e := errcode.Classify(err, code)
	logger.ErrorContext(ctx, "group request rejected", logging.ErrorCode(e.Code), logging.Error(e))
	return e
}

func hasMember(members []models.Member, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func memberUserKeys(members []models.Member) []string {
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, cache.UserKey(m.UserID))
	}
	return keys
}
