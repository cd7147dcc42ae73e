package authorizer

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

func TestBuildMutations_SingleGroup(t *testing.T) {
	payload := value.Mapping{"groups": value.Sequence{value.Mapping{"groupId": "g1"}}}

	got, err := BuildMutations("u1", "u1", payload)

	require.NoError(t, err)
	assert.Equal(t, []models.MembershipMutation{{GroupID: "g1", UserID: "u1"}}, got)
}

func TestBuildMutations_IdentityCheckedFirst(t *testing.T) {
	// The payload would fail every later check too.
	payload := value.Mapping{"groups": value.Sequence{value.Mapping{"role": "admin"}}}

	tests := []struct {
		name        string
		requestedBy string
		caller      string
	}{
		{name: "both empty", requestedBy: "", caller: ""},
		{name: "empty requester", requestedBy: "", caller: "u1"},
		{name: "different caller", requestedBy: "u1", caller: "u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildMutations(tt.requestedBy, tt.caller, payload)
			assert.Nil(t, got)
			require.ErrorIs(t, err, errcode.ErrNotAuthorized)
			assert.Equal(t, errcode.CodeMembershipNotAuthorized, errcode.CodeOf(err))
		})
	}
}

func TestBuildMutations_RestrictedFields(t *testing.T) {
	tests := []struct {
		name  string
		entry value.Mapping
	}{
		{name: "role", entry: value.Mapping{"groupId": "g1", "role": "admin"}},
		{name: "status", entry: value.Mapping{"groupId": "g1", "status": "active"}},
		{name: "status without group", entry: value.Mapping{"status": "active"}},
		{name: "status beside malformed visited", entry: value.Mapping{"groupId": "g1", "status": "active", "visited": "yes"}},
		{name: "status beside malformed group id", entry: value.Mapping{"groupId": 5, "status": "active"}},
		{name: "non-string role", entry: value.Mapping{"groupId": "g1", "role": 1}},
		{name: "non-string status", entry: value.Mapping{"groupId": "g1", "status": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := value.Mapping{"groups": value.Sequence{value.Mapping{"groupId": "g0"}, tt.entry}}
			got, err := BuildMutations("u1", "u1", payload)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, errcode.ErrNotAuthorized)
			assert.Equal(t, errcode.CodeMembershipNotAuthorized, errcode.CodeOf(err))
		})
	}
}

func TestBuildMutations_BlankRoleAllowed(t *testing.T) {
	payload := value.Mapping{"groups": value.Sequence{value.Mapping{"groupId": "g1", "role": "  ", "status": ""}}}

	got, err := BuildMutations("u1", "u1", payload)

	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBuildMutations_PayloadUserIDOverwritten(t *testing.T) {
	caller := gofakeit.UUID()
	payload := value.Mapping{"groups": value.Sequence{
		value.Mapping{"groupId": "g1", "userId": gofakeit.UUID()},
		value.Mapping{"groupId": "g2", "userId": caller},
	}}

	got, err := BuildMutations(caller, caller, payload)

	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, caller, m.UserID)
	}
}

func TestBuildMutations_MissingGroupID(t *testing.T) {
	for _, entry := range []value.Mapping{{}, {"groupId": " "}, {"groupId": nil}} {
		_, err := BuildMutations("u1", "u1", value.Mapping{"groups": value.Sequence{entry}})

		var e *errcode.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, errcode.KindMandatoryParamMissing, e.Kind)
		assert.Equal(t, errcode.CodeMembershipGroupID, e.Code)
		assert.Equal(t, "groups.groupId", e.Field)
	}
}

func TestBuildMutations_OrderAndVisited(t *testing.T) {
	payload := value.Mapping{"groups": value.Sequence{
		value.Mapping{"groupId": "g3", "visited": true},
		value.Mapping{"groupId": "g1"},
		map[interface{}]interface{}{"groupId": "g2", "visited": false},
	}}

	got, err := BuildMutations("u1", "u1", payload)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"g3", "g1", "g2"}, []string{got[0].GroupID, got[1].GroupID, got[2].GroupID})
	require.NotNil(t, got[0].Visited)
	assert.True(t, *got[0].Visited)
	assert.Nil(t, got[1].Visited)
	require.NotNil(t, got[2].Visited)
	assert.False(t, *got[2].Visited)
}

func TestBuildMutations_EmptyGroups(t *testing.T) {
	for _, payload := range []value.Mapping{{}, {"groups": value.Sequence{}}, {"groups": nil}} {
		got, err := BuildMutations("u1", "u1", payload)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestBuildMutations_WrongFieldShape(t *testing.T) {
	payload := value.Mapping{"groups": value.Sequence{
		value.Mapping{"groupId": "g1"},
		value.Mapping{"groupId": 7.0},
	}}

	_, err := BuildMutations("u1", "u1", payload)

	var e *errcode.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errcode.KindParamDataType, e.Kind)
	assert.Equal(t, "groups[1].groupId", e.Field)

	_, err = BuildMutations("u1", "u1", value.Mapping{"groups": value.Sequence{value.Mapping{"groupId": "g1", "visited": "yes"}}})
	assert.ErrorIs(t, err, errcode.ErrParamDataType)
}
