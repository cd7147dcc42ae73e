package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

// MemoryRepository keeps groups in process memory. Groups are copied on the
// way in and out so callers never share state with the store.
type MemoryRepository struct {
	groups map[string]*models.Group
	order  []string
	now    func() time.Time
	mu     sync.RWMutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		groups: make(map[string]*models.Group),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) EditMembers(ctx context.Context, mutations []models.MembershipMutation, reqCtx value.Mapping, actingUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check every mutation before touching anything.
	for _, m := range mutations {
		g, ok := r.groups[m.GroupID]
		if !ok || memberIndex(g, m.UserID) < 0 {
			return ErrMemberNotFound
		}
	}

	now := r.now()
	source := requestSource(reqCtx)
	for _, m := range mutations {
		g := r.groups[m.GroupID]
		i := memberIndex(g, m.UserID)
		if m.Visited != nil {
			g.Members[i].Visited = *m.Visited
		}
		g.Members[i].UpdatedSource = source
		g.Members[i].UpdatedAt = now
		g.UpdatedBy = actingUserID
		g.UpdatedAt = now
	}
	return nil
}

func (r *MemoryRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[group.ID]; exists {
		return ErrGroupExists
	}

	g := cloneGroup(group)
	now := r.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = g.CreatedAt
	if g.Status == "" {
		g.Status = models.GroupStatusActive
	}
	g.Members = nil
	upsertMembers(g, group.Members, group.CreatedBy, now)
	g.Activities = nil
	upsertActivities(g, group.Activities)

	r.groups[g.ID] = g
	r.order = append(r.order, g.ID)
	return nil
}

func (r *MemoryRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (r *MemoryRepository) UpdateGroup(ctx context.Context, u *models.GroupUpdate) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.groups[u.GroupID]
	if !ok {
		return nil, ErrGroupNotFound
	}

	g := cloneGroup(stored)
	now := r.now()
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.Status != "" {
		g.Status = u.Status
	}
	upsertMembers(g, u.Members.Add, u.UpdatedBy, now)
	for _, e := range u.Members.Edit {
		i := memberIndex(g, e.UserID)
		if i < 0 {
			continue
		}
		if e.Role != "" {
			g.Members[i].Role = e.Role
		}
		if e.Status != "" {
			g.Members[i].Status = e.Status
		}
		g.Members[i].UpdatedAt = now
	}
	g.Members = slices.DeleteFunc(g.Members, func(m models.Member) bool {
		return slices.Contains(u.Members.Remove, m.UserID)
	})
	upsertActivities(g, u.Activities.Add)
	g.Activities = slices.DeleteFunc(g.Activities, func(a models.ActivityRef) bool {
		return slices.Contains(u.Activities.Remove, a.ID)
	})
	g.UpdatedBy = u.UpdatedBy
	g.UpdatedAt = now

	r.groups[g.ID] = g
	return cloneGroup(g), nil
}

func (r *MemoryRepository) DeleteGroup(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[id]; !ok {
		return ErrGroupNotFound
	}
	delete(r.groups, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

func (r *MemoryRepository) SearchGroups(ctx context.Context, f models.SearchFilter) ([]*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var result []*models.Group
	for _, id := range r.order {
		g := r.groups[id]
		if f.UserID != "" && memberIndex(g, f.UserID) < 0 {
			continue
		}
		if len(f.GroupIDs) > 0 && !slices.Contains(f.GroupIDs, g.ID) {
			continue
		}
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		result = append(result, cloneGroup(g))
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

func memberIndex(g *models.Group, userID string) int {
	return slices.IndexFunc(g.Members, func(m models.Member) bool { return m.UserID == userID })
}

func upsertMembers(g *models.Group, members []models.Member, createdBy string, now time.Time) {
	for _, m := range members {
		if m.Role == "" {
			m.Role = models.MemberRoleMember
		}
		if m.Status == "" {
			m.Status = models.MemberStatusActive
		}
		m.GroupID = g.ID
		m.UpdatedAt = now
		if i := memberIndex(g, m.UserID); i >= 0 {
			g.Members[i].Role = m.Role
			g.Members[i].Status = m.Status
			g.Members[i].UpdatedAt = now
			continue
		}
		m.CreatedBy = createdBy
		m.CreatedAt = now
		g.Members = append(g.Members, m)
	}
}

func upsertActivities(g *models.Group, activities []models.ActivityRef) {
	for _, a := range activities {
		i := slices.IndexFunc(g.Activities, func(x models.ActivityRef) bool { return x.ID == a.ID })
		if i >= 0 {
			g.Activities[i].Type = a.Type
			continue
		}
		g.Activities = append(g.Activities, a)
	}
}

func cloneGroup(g *models.Group) *models.Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	c.Activities = slices.Clone(g.Activities)
	return &c
}
