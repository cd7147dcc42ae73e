package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

func active() value.Mapping { return value.Mapping{"id": "g1", "status": models.GroupStatusActive} }
func suspended() value.Mapping { return value.Mapping{"id": "g1", "status": models.GroupStatusSuspended} }

func TestClassify_UpdatePath(t *testing.T) {
	tests := []struct {
		name      string
		success   bool
		stored    value.Mapping
		requested value.Mapping
		wantType  string
		wantCur   string
		wantPrev  string
	}{
		{
			name:     "failure",
			stored:   active(),
			wantType: EventGroupUpdateError,
			wantPrev: models.GroupStatusActive,
		},
		{
			name:     "failure without stored state",
			wantType: EventGroupUpdateError,
		},
		{
			name:    "activities win over members and suspension",
			success: true,
			stored:  active(),
			requested: value.Mapping{
				"activities": value.Mapping{"add": value.Sequence{value.Mapping{"id": "a1", "type": "course"}}},
				"members":    value.Mapping{"add": value.Sequence{value.Mapping{"userId": "u2"}}},
				"status":     models.GroupStatusSuspended,
			},
			wantType: EventActivity,
			wantCur:  models.GroupStatusActive,
			wantPrev: models.GroupStatusActive,
		},
		{
			name:    "members win over suspension",
			success: true,
			stored:  active(),
			requested: value.Mapping{
				"members": value.Mapping{"remove": value.Sequence{"u2"}},
				"status":  models.GroupStatusSuspended,
			},
			wantType: EventAddMember,
			wantCur:  models.GroupStatusActive,
			wantPrev: models.GroupStatusActive,
		},
		{
			name:      "suspension",
			success:   true,
			stored:    active(),
			requested: value.Mapping{"status": models.GroupStatusSuspended, "members": value.Mapping{}},
			wantType:  EventDeactivateGroup,
			wantCur:   models.GroupStatusActive,
			wantPrev:  models.GroupStatusActive,
		},
		{
			name:      "plain update",
			success:   true,
			stored:    active(),
			requested: value.Mapping{"name": "renamed", "activities": value.Sequence{}},
			wantType:  EventUpdateGroup,
			wantCur:   models.GroupStatusActive,
			wantPrev:  models.GroupStatusActive,
		},
		{
			name:      "activation",
			success:   true,
			stored:    suspended(),
			requested: value.Mapping{"status": models.GroupStatusActive},
			wantType:  EventActivateGroup,
			wantCur:   models.GroupStatusActive,
			wantPrev:  models.GroupStatusSuspended,
		},
		{
			name:     "unknown stored status",
			success:  true,
			stored:   value.Mapping{"status": "ARCHIVED"},
			wantType: EventGroup,
		},
		{
			name:     "missing stored status",
			success:  true,
			stored:   value.Mapping{"id": "g1"},
			wantType: EventGroup,
		},
		{
			name:     "no stored state",
			success:  true,
			wantType: EventGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(Input{
				Path:      PathUpdate,
				Success:   tt.success,
				GroupID:   "g1",
				ActorID:   "u1",
				Stored:    tt.stored,
				Requested: tt.requested,
			})

			assert.Equal(t, tt.wantType, ev.EventType)
			assert.Equal(t, tt.wantCur, ev.CurrentState)
			assert.Equal(t, tt.wantPrev, ev.PreviousState)
			assert.Equal(t, "g1", ev.TargetID)
			assert.Equal(t, EntityGroup, ev.TargetType)
			assert.Equal(t, []models.CorrelatedEntity{{ID: "u1", Type: EntityUser}, {ID: "g1", Type: EntityGroup}}, ev.CorrelatedEntities)
		})
	}
}

func TestClassify_ForeignMembersCount(t *testing.T) {
	ev := Classify(Input{
		Path:      PathUpdate,
		Success:   true,
		Stored:    active(),
		Requested: value.Mapping{"members": map[interface{}]interface{}{"add": []interface{}{"u2"}}},
	})
	assert.Equal(t, EventAddMember, ev.EventType)
}

func TestClassify_Deterministic(t *testing.T) {
	in := Input{
		Path:    PathUpdate,
		Success: true,
		GroupID: "g1",
		Stored:  active(),
		Requested: value.Mapping{
			"status":     models.GroupStatusSuspended,
			"members":    value.Mapping{"add": value.Sequence{"u2"}, "remove": value.Sequence{"u3"}},
			"activities": value.Mapping{"remove": value.Sequence{"a1"}},
		},
	}
	first := Classify(in)
	for range 50 {
		assert.Equal(t, first, Classify(in))
	}
	assert.Equal(t, EventActivity, first.EventType)
}

func TestClassify_CreatePath(t *testing.T) {
	ev := Classify(Input{Path: PathCreate, Success: true, GroupID: "g1", ActorID: "u1", RequestSource: "web"})
	assert.Equal(t, EventGroupCreated, ev.EventType)
	assert.Equal(t, models.GroupStatusActive, ev.CurrentState)
	assert.Empty(t, ev.PreviousState)
	assert.Equal(t, []models.CorrelatedEntity{
		{ID: "web", Type: EntityRequestSource},
		{ID: "u1", Type: EntityUser},
		{ID: "g1", Type: EntityGroup},
	}, ev.CorrelatedEntities)

	ev = Classify(Input{Path: PathCreate, ActorID: "u1", RequestSource: "   "})
	assert.Equal(t, EventGroupCreateError, ev.EventType)
	assert.Empty(t, ev.CurrentState)
	assert.Equal(t, []models.CorrelatedEntity{{ID: "u1", Type: EntityUser}}, ev.CorrelatedEntities)
}

func TestClassify_DeletePath(t *testing.T) {
	ev := Classify(Input{Path: PathDelete, Success: true, GroupID: "g1", ActorID: "u1", Stored: suspended()})
	assert.Equal(t, EventDeleteGroup, ev.EventType)
	assert.Equal(t, models.GroupStatusSuspended, ev.PreviousState)

	ev = Classify(Input{Path: PathDelete, GroupID: "g1", ActorID: "u1"})
	assert.Equal(t, EventGroupDeleteError, ev.EventType)
	assert.Empty(t, ev.PreviousState)
}

func TestClassify_MembershipPath(t *testing.T) {
	requested := value.Mapping{
		"userId": "u1",
		"groups": value.Sequence{
			value.Mapping{"groupId": "g2", "visited": true},
			map[interface{}]interface{}{"groupId": "g1"},
			value.Mapping{},
		},
	}

	ev := Classify(Input{Path: PathMembership, Success: true, UserID: "u1", ActorID: "u1", RequestSource: "mobile", Requested: requested})

	assert.Equal(t, EventMemberUpdate, ev.EventType)
	assert.Equal(t, "u1", ev.TargetID)
	assert.Equal(t, EntityUser, ev.TargetType)
	assert.Equal(t, []models.CorrelatedEntity{
		{ID: "mobile", Type: EntityRequestSource},
		{ID: "g2", Type: EntityGroup},
		{ID: "g1", Type: EntityGroup},
		{ID: "u1", Type: EntityUser},
	}, ev.CorrelatedEntities)

	ev = Classify(Input{Path: PathMembership, UserID: "u1", ActorID: "u1", Requested: value.Mapping{"groups": "garbage"}})
	assert.Equal(t, EventGroupMemberUpdateError, ev.EventType)
	assert.Equal(t, []models.CorrelatedEntity{{ID: "u1", Type: EntityUser}}, ev.CorrelatedEntities)
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "membership", PathMembership.String())
	assert.Equal(t, "unknown", Path(42).String())
}
