package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/validation"
	"github.com/cohortlabs/cohort-stack/common/value"
)

func newValidators() *Validators {
	return New(validation.New(validation.WithLogger(logging.Discard())), logging.Discard())
}

func requireError(t *testing.T, err error, kind errcode.Kind, code, field string) {
	t.Helper()
	var e *errcode.Error
	require.True(t, errors.As(err, &e), "expected *errcode.Error, got %v", err)
	assert.Equal(t, kind, e.Kind)
	assert.Equal(t, code, e.Code)
	if field != "" {
		assert.Equal(t, field, e.Field)
	}
}

func TestGroupCreate(t *testing.T) {
	tests := []struct {
		name      string
		payload   value.Mapping
		wantKind  errcode.Kind
		wantField string
	}{
		{name: "minimal", payload: value.Mapping{"name": "chess club"}},
		{
			name: "full",
			payload: value.Mapping{
				"name":       "chess club",
				"members":    value.Sequence{value.Mapping{"userId": "u1", "role": "admin", "status": "active"}},
				"activities": value.Sequence{value.Mapping{"id": "a1", "type": "course"}},
			},
		},
		{name: "empty request", payload: value.Mapping{}, wantKind: errcode.KindInvalidRequestData},
		{name: "missing name", payload: value.Mapping{"description": "x"}, wantKind: errcode.KindMandatoryParamMissing, wantField: "request.name"},
		{name: "blank name", payload: value.Mapping{"name": " "}, wantKind: errcode.KindMandatoryParamMissing, wantField: "request.name"},
		{name: "numeric name", payload: value.Mapping{"name": 3.0}, wantKind: errcode.KindParamDataType, wantField: "request.name"},
		{name: "members not a list", payload: value.Mapping{"name": "g", "members": value.Mapping{}}, wantKind: errcode.KindParamDataType, wantField: "request.members"},
		{
			name:      "member without userId",
			payload:   value.Mapping{"name": "g", "members": value.Sequence{value.Mapping{"userId": "u1"}, value.Mapping{"role": "member"}}},
			wantKind:  errcode.KindMandatoryParamMissing,
			wantField: "members[1].userId",
		},
		{
			name:      "member with unknown role",
			payload:   value.Mapping{"name": "g", "members": value.Sequence{value.Mapping{"userId": "u1", "role": "owner"}}},
			wantKind:  errcode.KindInvalidParamValue,
			wantField: "members[0].role",
		},
		{
			name:      "member that is not a map",
			payload:   value.Mapping{"name": "g", "members": value.Sequence{"u1"}},
			wantKind:  errcode.KindMandatoryParamMissing,
			wantField: "members[0].userId",
		},
		{
			name:      "activity without type",
			payload:   value.Mapping{"name": "g", "activities": value.Sequence{value.Mapping{"id": "a1"}}},
			wantKind:  errcode.KindMandatoryParamMissing,
			wantField: "activities[0].type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newValidators().GroupCreate(context.Background(), tt.payload)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			requireError(t, err, tt.wantKind, errcode.CodeCreateInvalid, tt.wantField)
		})
	}
}

func TestGroupCreate_ForeignMemberList(t *testing.T) {
	payload := value.Mapping{
		"name":    "g",
		"members": []interface{}{map[interface{}]interface{}{"userId": "u1", "status": "inactive"}},
	}
	assert.NoError(t, newValidators().GroupCreate(context.Background(), payload))
}

func TestGroupSearch(t *testing.T) {
	x := newValidators()
	ctx := context.Background()

	in := value.Mapping{"filters": map[interface{}]interface{}{
		"userId": "u1",
		"nested": map[interface{}]interface{}{"status": "ACTIVE"},
	}}
	out, err := x.GroupSearch(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, value.Mapping{"userId": "u1", "nested": value.Mapping{"status": "ACTIVE"}}, out["filters"])
	_, stillForeign := in["filters"].(map[interface{}]interface{})
	assert.True(t, stillForeign, "caller's payload is not modified")

	_, err = x.GroupSearch(ctx, value.Mapping{"filters": value.Mapping{}})
	assert.NoError(t, err, "empty filters are allowed")

	_, err = x.GroupSearch(ctx, value.Mapping{})
	requireError(t, err, errcode.KindInvalidRequestData, errcode.CodeSearchInvalid, "")

	_, err = x.GroupSearch(ctx, value.Mapping{"limit": 10.0})
	requireError(t, err, errcode.KindMandatoryParamMissing, errcode.CodeSearchInvalid, "request.filters")

	_, err = x.GroupSearch(ctx, value.Mapping{"filters": "userId=u1"})
	requireError(t, err, errcode.KindParamDataType, errcode.CodeSearchInvalid, "request.filters")

	// The original error stays reachable as the cause.
	assert.ErrorIs(t, err, errcode.ErrParamDataType)
}

func TestMembershipUpdate(t *testing.T) {
	x := newValidators()
	ctx := context.Background()

	assert.NoError(t, x.MembershipUpdate(ctx, value.Mapping{"userId": "u1"}))
	assert.NoError(t, x.MembershipUpdate(ctx, value.Mapping{"userId": "u1", "groups": value.Sequence{value.Mapping{"groupId": "g1"}}}))
	assert.NoError(t, x.MembershipUpdate(ctx, value.Mapping{"userId": "u1", "groups": []interface{}{map[interface{}]interface{}{"groupId": "g1"}}}))

	requireError(t, x.MembershipUpdate(ctx, value.Mapping{}), errcode.KindInvalidRequestData, string(errcode.KindInvalidRequestData), "")
	requireError(t, x.MembershipUpdate(ctx, value.Mapping{"groups": "g1"}), errcode.KindParamDataType, string(errcode.KindParamDataType), "request.groups")
	requireError(t, x.MembershipUpdate(ctx, value.Mapping{"groups": value.Sequence{value.Mapping{}, "g1"}}), errcode.KindParamDataType, string(errcode.KindParamDataType), "groups[1]")
}

func TestGroupUpdate(t *testing.T) {
	x := newValidators()
	ctx := context.Background()

	assert.NoError(t, x.GroupUpdate(ctx, value.Mapping{"groupId": "g1", "status": "SUSPENDED"}))
	assert.NoError(t, x.GroupUpdate(ctx, value.Mapping{"groupId": "g1", "members": value.Mapping{"add": value.Sequence{}}}))

	requireError(t, x.GroupUpdate(ctx, value.Mapping{"name": "x"}), errcode.KindMandatoryParamMissing, errcode.CodeUpdateInvalid, "request.groupId")
	requireError(t, x.GroupUpdate(ctx, value.Mapping{"groupId": "g1", "status": "DELETED"}), errcode.KindInvalidParamValue, errcode.CodeUpdateInvalid, "request.status")
	requireError(t, x.GroupUpdate(ctx, value.Mapping{"groupId": "g1", "members": value.Sequence{}}), errcode.KindParamDataType, errcode.CodeUpdateInvalid, "request.members")
}

func TestGroupDelete(t *testing.T) {
	x := newValidators()
	ctx := context.Background()

	assert.NoError(t, x.GroupDelete(ctx, value.Mapping{"groupId": "g1"}))
	requireError(t, x.GroupDelete(ctx, value.Mapping{"groupId": ""}), errcode.KindMandatoryParamMissing, errcode.CodeDeleteInvalid, "request.groupId")
	requireError(t, x.GroupDelete(ctx, nil), errcode.KindInvalidRequestData, errcode.CodeDeleteInvalid, "")
}
