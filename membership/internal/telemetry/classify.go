// Package telemetry classifies group and membership changes into audit events
// and ships them to audit sinks.
package telemetry

import (
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

// Event types.
const (
	EventGroupCreated           = "GROUP_CREATED"
	EventGroupCreateError       = "GROUP_CREATE_ERROR"
	EventDeleteGroup            = "DELETE_GROUP"
	EventGroupDeleteError       = "GROUP_DELETE_ERROR"
	EventGroupUpdateError       = "GROUP_UPDATE_ERROR"
	EventActivity               = "ACTIVITY"
	EventAddMember              = "ADD_MEMBER"
	EventDeactivateGroup        = "DEACTIVATE_GROUP"
	EventUpdateGroup            = "UPDATE_GROUP"
	EventActivateGroup          = "ACTIVATE_GROUP"
	EventGroup                  = "GROUP"
	EventMemberUpdate           = "MEMBER_UPDATE"
	EventGroupMemberUpdateError = "GROUP_MEMBER_UPDATE_ERROR"
)

// Entity types used for targets and correlated entities.
const (
	EntityGroup         = "Group"
	EntityUser          = "User"
	EntityRequestSource = "RequestSource"
)

// Path names the pipeline that produced the outcome being classified.
type Path int

const (
	PathCreate Path = iota
	PathUpdate
	PathDelete
	PathMembership
)

func (p Path) String() string {
	switch p {
	case PathCreate:
		return "create"
	case PathUpdate:
		return "update"
	case PathDelete:
		return "delete"
	case PathMembership:
		return "membership"
	default:
		return "unknown"
	}
}

// Input is everything Classify looks at.
type Input struct {
	Path    Path
	Success bool

	// GroupID is the target of group paths. UserID is the target of the
	// membership path.
	GroupID string
	UserID  string

	// ActorID is the acting user. RequestSource is optional.
	ActorID       string
	RequestSource string

	// Stored is the group as the store held it before the change; nil when
	// unknown. Requested is the request payload.
	Stored    value.Mapping
	Requested value.Mapping
}

// Classify picks the event type for in and builds the audit event. It is
// deterministic and never fails; missing fields fall through to the generic
// outcome of each path.
func Classify(in Input) models.AuditEvent {
	switch in.Path {
	case PathMembership:
		return classifyMembership(in)
	case PathCreate:
		return classifyCreate(in)
	case PathDelete:
		return classifyDelete(in)
	default:
		return classifyUpdate(in)
	}
}

func classifyCreate(in Input) models.AuditEvent {
	ev := groupTarget(in.GroupID)
	if in.Success {
		ev.EventType = EventGroupCreated
		ev.CurrentState = models.GroupStatusActive
	} else {
		ev.EventType = EventGroupCreateError
	}
	ev.CorrelatedEntities = correlate(
		source(in.RequestSource),
		entity(in.ActorID, EntityUser),
		entity(in.GroupID, EntityGroup),
	)
	return ev
}

func classifyDelete(in Input) models.AuditEvent {
	ev := groupTarget(in.GroupID)
	ev.PreviousState = storedStatus(in.Stored)
	if in.Success {
		ev.EventType = EventDeleteGroup
	} else {
		ev.EventType = EventGroupDeleteError
	}
	ev.CorrelatedEntities = correlate(
		entity(in.ActorID, EntityUser),
		entity(in.GroupID, EntityGroup),
	)
	return ev
}

func classifyUpdate(in Input) models.AuditEvent {
	ev := groupTarget(in.GroupID)
	stored := storedStatus(in.Stored)
	requested, _ := value.String(in.Requested, "status")

	switch {
	case !in.Success:
		ev.EventType = EventGroupUpdateError
		ev.PreviousState = stored
	case stored == models.GroupStatusActive:
		ev.EventType = activeGroupEvent(in.Requested, requested)
		ev.CurrentState = models.GroupStatusActive
		ev.PreviousState = stored
	case stored == models.GroupStatusSuspended:
		ev.EventType = EventActivateGroup
		ev.CurrentState = requested
		ev.PreviousState = stored
	default:
		ev.EventType = EventGroup
	}

	ev.CorrelatedEntities = correlate(
		entity(in.ActorID, EntityUser),
		entity(in.GroupID, EntityGroup),
	)
	return ev
}

// activeGroupEvent applies the tie-break for updates of an active group:
// activities, then members, then suspension, then a plain update.
func activeGroupEvent(payload value.Mapping, requestedStatus string) string {
	switch {
	case nonEmpty(payload["activities"]):
		return EventActivity
	case nonEmpty(payload["members"]):
		return EventAddMember
	case requestedStatus == models.GroupStatusSuspended:
		return EventDeactivateGroup
	default:
		return EventUpdateGroup
	}
}

func classifyMembership(in Input) models.AuditEvent {
	ev := models.AuditEvent{TargetID: in.UserID, TargetType: EntityUser}
	if in.Success {
		ev.EventType = EventMemberUpdate
	} else {
		ev.EventType = EventGroupMemberUpdateError
	}

	parts := []models.CorrelatedEntity{source(in.RequestSource)}
	for _, raw := range value.NormalizeSequence(in.Requested["groups"]) {
		groupID, _ := value.String(value.NormalizeMapping(raw), "groupId")
		parts = append(parts, entity(groupID, EntityGroup))
	}
	parts = append(parts, entity(in.ActorID, EntityUser))
	ev.CorrelatedEntities = correlate(parts...)
	return ev
}

func groupTarget(id string) models.AuditEvent {
	return models.AuditEvent{TargetID: id, TargetType: EntityGroup}
}

func storedStatus(stored value.Mapping) string {
	s, _ := value.String(stored, "status")
	return s
}

func source(s string) models.CorrelatedEntity {
	return entity(s, EntityRequestSource)
}

func entity(id, typ string) models.CorrelatedEntity {
	return models.CorrelatedEntity{ID: id, Type: typ}
}

// correlate keeps entities with a non-blank id, in order.
func correlate(entities ...models.CorrelatedEntity) []models.CorrelatedEntity {
	out := make([]models.CorrelatedEntity, 0, len(entities))
	for _, e := range entities {
		if value.IsBlank(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// nonEmpty reports whether v is a mapping or sequence with at least one
// entry.
func nonEmpty(v any) bool {
	switch {
	case v == nil:
		return false
	case value.IsMapping(v):
		return len(value.NormalizeMapping(v)) > 0
	case value.IsSequence(v):
		return len(value.NormalizeSequence(v)) > 0
	default:
		return false
	}
}
