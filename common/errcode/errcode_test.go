package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsMatchByKind(t *testing.T) {
	err := fmt.Errorf("validate: %w", MandatoryParamMissing("groupId", "groups"))

	assert.ErrorIs(t, err, ErrMandatoryParamMissing)
	assert.NotErrorIs(t, err, ErrParamDataType)
	assert.Equal(t, KindMandatoryParamMissing, KindOf(err))
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"missing", MandatoryParamMissing("name", "request"), "MANDATORY_PARAM_MISSING: mandatory parameter name is missing in request"},
		{"missing at top level", MandatoryParamMissing("name", ""), "MANDATORY_PARAM_MISSING: mandatory parameter name is missing"},
		{"data type", ParamDataType("request.members", "List"), "DATA_TYPE_ERROR: data type of request.members should be List"},
		{"value", InvalidParamValue("owner", "members[0].role"), "INVALID_PARAMETER_VALUE: invalid value owner for parameter members[0].role"},
		{"not authorized", NotAuthorized(CodeMembershipNotAuthorized), "GS_MBRSHP_UDT01: you are not authorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapKeepsKind(t *testing.T) {
	inner := ParamDataType("request.name", "String")

	err := Wrap(inner, CodeCreateInvalid)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, CodeCreateInvalid, e.Code)
	assert.Equal(t, KindParamDataType, e.Kind)
	assert.Equal(t, "request.name", e.Field)
	assert.Same(t, inner, e.Cause)
	assert.Nil(t, Wrap(nil, CodeCreateInvalid))
}

func TestClassify(t *testing.T) {
	structured := NotAuthorized(CodeMembershipNotAuthorized)
	assert.Same(t, structured, Classify(structured, CodeMembershipFailed))

	raw := errors.New("connection refused")
	e := Classify(raw, CodeMembershipFailed)
	assert.Equal(t, KindDownstreamFailure, e.Kind)
	assert.Equal(t, CodeMembershipFailed, e.Code)
	assert.ErrorIs(t, e, raw)
	assert.Equal(t, "GS_MBRSHP_UDT03: failed to apply the request: connection refused", e.Error())
	assert.Equal(t, "", CodeOf(raw))
}
