// Package validator holds the request validators of the membership service.
// Each validator is a rule list evaluated by common/validation; errors are
// re-labelled with the operation's error code.
package validator

import (
	"context"
	"maps"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/validation"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

const parentRequest = "request"

var (
	createRules = []validation.Rule{
		{Field: "name", Type: validation.TypeString, Mandatory: true, RequireNonEmpty: true},
		{Field: "members", Type: validation.TypeSequence},
		{Field: "activities", Type: validation.TypeSequence},
	}

	createMemberRules = []validation.Rule{
		{Field: "userId", Type: validation.TypeString, Mandatory: true, RequireNonEmpty: true},
		{Field: "status", Type: validation.TypeString, AllowedValues: []string{models.MemberStatusActive, models.MemberStatusInactive}},
		{Field: "role", Type: validation.TypeString, AllowedValues: []string{models.MemberRoleAdmin, models.MemberRoleMember}},
	}

	activityRules = []validation.Rule{
		{Field: "id", Type: validation.TypeString, Mandatory: true, RequireNonEmpty: true},
		{Field: "type", Type: validation.TypeString, Mandatory: true, RequireNonEmpty: true},
	}

	searchRules = []validation.Rule{
		{Field: "filters", Type: validation.TypeMap, Mandatory: true},
	}

	membershipRules = []validation.Rule{
		{Field: "groups", Type: validation.TypeSequence},
	}

	updateRules = []validation.Rule{
		{Field: "groupId", Type: validation.TypeString, Mandatory: true, RequireNonEmpty: true},
		{Field: "name", Type: validation.TypeString},
		{Field: "status", Type: validation.TypeString, AllowedValues: []string{models.GroupStatusActive, models.GroupStatusSuspended}},
		{Field: "members", Type: validation.TypeMap},
		{Field: "activities", Type: validation.TypeMap},
	}

	deleteRules = []validation.Rule{
		{Field: "groupId", Type: validation.TypeString, Mandatory: true, RequireNonEmpty: true},
	}
)

// Validators checks request payloads before they reach a pipeline.
type Validators struct {
	v      *validation.Validator
	logger *logging.Logger
}

// New creates Validators on top of v.
func New(v *validation.Validator, logger *logging.Logger) *Validators {
	if logger == nil {
		logger = logging.Default()
	}
	return &Validators{v: v, logger: logger}
}

// GroupCreate validates a create request: a non-blank name, optional member
// and activity lists, and well-formed list entries.
func (x *Validators) GroupCreate(ctx context.Context, payload value.Mapping) error {
	x.logger.DebugContext(ctx, "validating create group request")
	err := x.groupCreate(ctx, payload)
	return x.relabel(ctx, err, errcode.CodeCreateInvalid)
}

func (x *Validators) groupCreate(ctx context.Context, payload value.Mapping) error {
	if err := x.v.RequireRequestNonEmpty(ctx, payload); err != nil {
		return err
	}
	if err := x.v.Apply(ctx, payload, createRules, parentRequest); err != nil {
		return err
	}
	if err := x.eachElement(ctx, payload["members"], "members", createMemberRules); err != nil {
		return err
	}
	return x.eachElement(ctx, payload["activities"], "activities", activityRules)
}

// GroupSearch normalizes the filters of a search request, including nested
// foreign collections, and validates that filters is a map. The returned
// payload is a shallow copy carrying the normalized filters.
func (x *Validators) GroupSearch(ctx context.Context, payload value.Mapping) (value.Mapping, error) {
	x.logger.DebugContext(ctx, "validating search group request")
	if filters, ok := payload["filters"]; ok && filters != nil {
		payload = maps.Clone(payload)
		payload["filters"] = value.Normalize(filters)
	}
	if err := x.v.RequireRequestNonEmpty(ctx, payload); err != nil {
		return nil, x.relabel(ctx, err, errcode.CodeSearchInvalid)
	}
	if err := x.v.Apply(ctx, payload, searchRules, parentRequest); err != nil {
		return nil, x.relabel(ctx, err, errcode.CodeSearchInvalid)
	}
	return payload, nil
}

// MembershipUpdate validates the structure of a membership update: an
// optional groups list whose entries are maps. Field-level checks belong to
// the authorizer.
func (x *Validators) MembershipUpdate(ctx context.Context, payload value.Mapping) error {
	if err := x.v.RequireRequestNonEmpty(ctx, payload); err != nil {
		return err
	}
	if err := x.v.Apply(ctx, payload, membershipRules, parentRequest); err != nil {
		return err
	}
	for i, entry := range value.NormalizeSequence(payload["groups"]) {
		if !value.IsMapping(entry) {
			path := validation.ElementPath("groups", i)
			x.logger.ErrorContext(ctx, "group entry is not a map", logging.Field(path))
			return errcode.ParamDataType(path, validation.TypeMap.String())
		}
	}
	return nil
}

// GroupUpdate validates an update request.
func (x *Validators) GroupUpdate(ctx context.Context, payload value.Mapping) error {
	err := x.v.RequireRequestNonEmpty(ctx, payload)
	if err == nil {
		err = x.v.Apply(ctx, payload, updateRules, parentRequest)
	}
	return x.relabel(ctx, err, errcode.CodeUpdateInvalid)
}

// GroupDelete validates a delete request.
func (x *Validators) GroupDelete(ctx context.Context, payload value.Mapping) error {
	err := x.v.RequireRequestNonEmpty(ctx, payload)
	if err == nil {
		err = x.v.Apply(ctx, payload, deleteRules, parentRequest)
	}
	return x.relabel(ctx, err, errcode.CodeDeleteInvalid)
}

// eachElement applies rules to every element of the list at field. Elements
// that are not maps are checked as empty maps.
func (x *Validators) eachElement(ctx context.Context, list any, field string, rules []validation.Rule) error {
	for i, raw := range value.NormalizeSequence(list) {
		elem := value.NormalizeMapping(raw)
		if elem == nil {
			elem = value.Mapping{}
		}
		if err := x.v.Apply(ctx, elem, rules, validation.ElementPath(field, i)); err != nil {
			return err
		}
	}
	return nil
}

func (x *Validators) relabel(ctx context.Context, err error, code string) error {
	if err == nil {
		return nil
	}
	x.logger.ErrorContext(ctx, "request validation failed", logging.ErrorCode(code), logging.Error(err))
	return errcode.Wrap(err, code)
}
