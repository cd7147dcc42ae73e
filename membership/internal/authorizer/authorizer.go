// Package authorizer turns a membership update payload into caller-scoped
// mutations. Callers may only touch their own membership and only the
// visited flag; role and status changes are refused outright.
package authorizer

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/validation"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

const (
	fieldGroups  = "groups"
	fieldGroupID = "groupId"
	fieldRole    = "role"
	fieldStatus  = "status"
)

// memberEntry is the structural view of one groups[] element.
type memberEntry struct {
	GroupID string `mapstructure:"groupId"`
	UserID  string `mapstructure:"userId"`
	Role    string `mapstructure:"role"`
	Status  string `mapstructure:"status"`
	Visited *bool  `mapstructure:"visited"`
}

// entryFields lists the known entry fields and the shape each must have.
var entryFields = []struct {
	name string
	typ  string
}{
	{"groupId", "String"},
	{"userId", "String"},
	{"role", "String"},
	{"status", "String"},
	{"visited", "Boolean"},
}

// BuildMutations checks that requestedBy is the caller and returns one
// mutation per entry of payload["groups"], in order. The identity check runs
// before any entry is inspected, and a role or status in an entry is refused
// before its other fields are type-checked.
func BuildMutations(requestedBy, callerUserID string, payload value.Mapping) ([]models.MembershipMutation, error) {
	if requestedBy == "" || requestedBy != callerUserID {
		return nil, errcode.NotAuthorized(errcode.CodeMembershipNotAuthorized)
	}

	groups := value.NormalizeSequence(payload[fieldGroups])
	mutations := make([]models.MembershipMutation, 0, len(groups))
	for i, raw := range groups {
		m := value.NormalizeMapping(raw)
		if restricted(m) {
			return nil, errcode.NotAuthorized(errcode.CodeMembershipNotAuthorized)
		}
		entry, err := decodeEntry(m, validation.ElementPath(fieldGroups, i))
		if err != nil {
			return nil, err
		}
		if value.IsBlank(entry.GroupID) {
			return nil, errcode.MandatoryParamMissing(fieldGroupID, fieldGroups).
				WithCode(errcode.CodeMembershipGroupID)
		}
		mutations = append(mutations, models.MembershipMutation{
			GroupID: entry.GroupID,
			UserID:  callerUserID,
			Visited: entry.Visited,
		})
	}
	return mutations, nil
}

// restricted reports whether the entry tries to set role or status. Any value
// other than nil or a blank string counts, whatever its type.
func restricted(m value.Mapping) bool {
	for _, field := range []string{fieldRole, fieldStatus} {
		switch v := m[field].(type) {
		case nil:
		case string:
			if !value.IsBlank(v) {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func decodeEntry(m value.Mapping, path string) (memberEntry, error) {
	var entry memberEntry
	for _, f := range entryFields {
		v, ok := m[f.name]
		if !ok || v == nil {
			continue
		}
		if !hasShape(v, f.typ) {
			return entry, errcode.ParamDataType(validation.Path(path, f.name), f.typ)
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &entry,
		TagName: "mapstructure",
	})
	if err != nil {
		return entry, fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return entry, errcode.ParamDataType(path, "Map")
	}
	return entry, nil
}

func hasShape(v any, typ string) bool {
	switch typ {
	case "Boolean":
		_, ok := v.(bool)
		return ok
	default:
		_, ok := v.(string)
		return ok
	}
}
