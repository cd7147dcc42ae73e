// Package models defines the domain types of the membership service.
package models

import (
	"strings"
	"time"

	"github.com/cohortlabs/cohort-stack/common/value"
)

// Group lifecycle statuses.
const (
	GroupStatusActive    = "ACTIVE"
	GroupStatusSuspended = "SUSPENDED"
)

// Member statuses and roles accepted on group creation.
const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
	MemberRoleAdmin      = "admin"
	MemberRoleMember     = "member"
)

// Request context keys supplied by the messaging layer.
const (
	ContextUserID        = "userId"
	ContextRequestSource = "requestSource"
)

// Operations served by the service.
const (
	OperationCreateGroup      = "createGroup"
	OperationUpdateGroup      = "updateGroup"
	OperationDeleteGroup      = "deleteGroup"
	OperationSearchGroups     = "searchGroups"
	OperationUpdateMembership = "updateGroupMembership"
)

// Request is one inbound call. Payload has been normalized at ingress.
type Request struct {
	ID        string
	Operation string
	Context   value.Mapping
	Payload   value.Mapping
}

// RequestedBy returns the acting caller from the request context.
func (r *Request) RequestedBy() string {
	s, _ := value.String(r.Context, ContextUserID)
	return s
}

// RequestSource returns the optional request source from the context.
func (r *Request) RequestSource() string {
	s, _ := value.String(r.Context, ContextRequestSource)
	return strings.TrimSpace(s)
}

// Response is the success value returned to the caller.
type Response struct {
	ID           string         `json:"id"`
	ResponseCode string         `json:"responseCode"`
	Result       map[string]any `json:"result"`
}

// ResponseCodeOK marks a successful response.
const ResponseCodeOK = "OK"

// NewResponse builds an OK response carrying result.
func NewResponse(id string, result map[string]any) *Response {
	if result == nil {
		result = map[string]any{}
	}
	return &Response{ID: id, ResponseCode: ResponseCodeOK, Result: result}
}

// MembershipMutation is a caller-scoped change to one membership record.
// UserID is always the caller's id.
type MembershipMutation struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	Visited *bool  `json:"visited,omitempty"`
}

// Member is a user's membership in a group.
type Member struct {
	GroupID       string    `json:"groupId" mapstructure:"groupId"`
	UserID        string    `json:"userId" mapstructure:"userId"`
	Role          string    `json:"role" mapstructure:"role"`
	Status        string    `json:"status" mapstructure:"status"`
	Visited       bool      `json:"visited" mapstructure:"visited"`
	UpdatedSource string    `json:"updatedSource,omitempty" mapstructure:"-"`
	CreatedBy     string    `json:"createdBy,omitempty" mapstructure:"-"`
	CreatedAt     time.Time `json:"createdAt" mapstructure:"-"`
	UpdatedAt     time.Time `json:"updatedAt" mapstructure:"-"`
}

// ActivityRef links a group to an activity.
type ActivityRef struct {
	ID   string `json:"id" mapstructure:"id"`
	Type string `json:"type" mapstructure:"type"`
}

// Group is a stored group together with its members and activities.
type Group struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status"`
	Activities  []ActivityRef `json:"activities"`
	Members     []Member      `json:"members,omitempty"`
	CreatedBy   string        `json:"createdBy"`
	UpdatedBy   string        `json:"updatedBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Snapshot renders the group as a canonical mapping for state diffing.
// A nil group yields a nil mapping.
func (g *Group) Snapshot() value.Mapping {
	if g == nil {
		return nil
	}
	activities := make(value.Sequence, 0, len(g.Activities))
	for _, a := range g.Activities {
		activities = append(activities, value.Mapping{"id": a.ID, "type": a.Type})
	}
	return value.Mapping{
		"id":          g.ID,
		"name":        g.Name,
		"status":      g.Status,
		"activities":  activities,
		"memberCount": float64(len(g.Members)),
	}
}

// MemberChanges lists the membership edits carried by a group update.
type MemberChanges struct {
	Add    []Member `mapstructure:"add"`
	Edit   []Member `mapstructure:"edit"`
	Remove []string `mapstructure:"remove"`
}

// Empty reports whether no change is requested.
func (c MemberChanges) Empty() bool {
	return len(c.Add) == 0 && len(c.Edit) == 0 && len(c.Remove) == 0
}

// ActivityChanges lists the activity edits carried by a group update.
type ActivityChanges struct {
	Add    []ActivityRef `mapstructure:"add"`
	Remove []string      `mapstructure:"remove"`
}

// Empty reports whether no change is requested.
func (c ActivityChanges) Empty() bool {
	return len(c.Add) == 0 && len(c.Remove) == 0
}

// GroupUpdate is a requested change to a group. Nil pointers leave the
// stored value untouched.
type GroupUpdate struct {
	GroupID     string          `mapstructure:"groupId"`
	Name        *string         `mapstructure:"name"`
	Description *string         `mapstructure:"description"`
	Status      string          `mapstructure:"status"`
	Members     MemberChanges   `mapstructure:"members"`
	Activities  ActivityChanges `mapstructure:"activities"`
	UpdatedBy   string          `mapstructure:"-"`
}

// SearchFilter selects groups. Zero fields match everything.
type SearchFilter struct {
	UserID   string   `mapstructure:"userId"`
	GroupIDs []string `mapstructure:"groupId"`
	Status   string   `mapstructure:"status"`
	Limit    int      `mapstructure:"limit"`
}

// CorrelatedEntity links an audit event to a related identifier.
type CorrelatedEntity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AuditEvent describes one classified change. Classification fills the
// target and correlation fields; the emitter stamps the rest.
type AuditEvent struct {
	ID                 string             `json:"id"`
	Timestamp          time.Time          `json:"timestamp"`
	EventType          string             `json:"eventType"`
	TargetID           string             `json:"targetId"`
	TargetType         string             `json:"targetType"`
	CurrentState       string             `json:"currentState,omitempty"`
	PreviousState      string             `json:"previousState,omitempty"`
	CorrelatedEntities []CorrelatedEntity `json:"correlatedEntities"`
	ActorID            string             `json:"actorId,omitempty"`
	RequestID          string             `json:"requestId,omitempty"`
	Operation          string             `json:"operation,omitempty"`
	Request            value.Mapping      `json:"request,omitempty"`
	Signature          string             `json:"signature,omitempty"`
}
