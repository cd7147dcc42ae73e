// Package validation evaluates declarative field rules against a normalized
// payload mapping. It supports exactly the shapes group, member and activity
// payloads use: strings, maps and sequences, optionally restricted to an
// enumerated set of values.
package validation

import (
	"context"
	"slices"
	"strconv"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/value"
)

// Type is the shape a field must conform to.
type Type int

const (
	TypeString Type = iota
	TypeMap
	TypeSequence
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeMap:
		return "Map"
	case TypeSequence:
		return "List"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Rule declares the constraints on one field.
type Rule struct {
	Field           string
	Type            Type
	Mandatory       bool
	RequireNonEmpty bool
	AllowedValues   []string
}

// EmptinessPolicy decides the error raised when a foreign sequence has to be
// checked for emptiness but cannot be walked.
type EmptinessPolicy int

const (
	// InvalidRequestOnUndetermined rejects the whole request as unusable.
	InvalidRequestOnUndetermined EmptinessPolicy = iota
	// MissingOnUndetermined reports the field as missing.
	MissingOnUndetermined
)

// ParseEmptinessPolicy maps a configuration value to a policy. Unknown values
// select InvalidRequestOnUndetermined.
func ParseEmptinessPolicy(s string) EmptinessPolicy {
	if s == "missing" {
		return MissingOnUndetermined
	}
	return InvalidRequestOnUndetermined
}

// Validator evaluates rules. It holds no per-request state and is safe for
// concurrent use.
type Validator struct {
	logger *logging.Logger
	policy EmptinessPolicy
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report rejections.
func WithLogger(l *logging.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithEmptinessPolicy sets the undetermined-emptiness policy.
func WithEmptinessPolicy(p EmptinessPolicy) Option {
	return func(v *Validator) { v.policy = p }
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{logger: logging.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Path addresses field under parent: "parent.field".
func Path(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + "." + field
}

// ElementPath addresses the index-th element of the sequence at parent:
// "parent[index]".
func ElementPath(parent string, index int) string {
	return parent + "[" + strconv.Itoa(index) + "]"
}

// RequireRequestNonEmpty rejects a request mapping with no entries.
func (v *Validator) RequireRequestNonEmpty(ctx context.Context, m value.Mapping) error {
	if len(m) == 0 {
		v.logger.ErrorContext(ctx, "request payload is empty")
		return errcode.InvalidRequestData()
	}
	return nil
}

// RequireMandatoryTyped checks that every field is present and conforms to
// t. With checkNonEmpty, blank strings and empty maps or sequences count as
// missing.
func (v *Validator) RequireMandatoryTyped(ctx context.Context, m value.Mapping, fields []string, t Type, checkNonEmpty bool, parent string) error {
	for _, field := range fields {
		raw, ok := m[field]
		if !ok {
			v.reject(ctx, "mandatory parameter missing", parent, field)
			return errcode.MandatoryParamMissing(field, parent)
		}
		if !conforms(raw, t) {
			v.reject(ctx, "parameter has wrong data type", parent, field)
			return errcode.ParamDataType(Path(parent, field), t.String())
		}
		if checkNonEmpty {
			if err := v.requirePresent(ctx, raw, t, field, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

// RequireOptionalTyped type-checks the fields that are present. Absent
// fields are accepted.
func (v *Validator) RequireOptionalTyped(ctx context.Context, m value.Mapping, fields []string, t Type, parent string) error {
	for _, field := range fields {
		raw, ok := m[field]
		if !ok {
			continue
		}
		if !conforms(raw, t) {
			v.reject(ctx, "parameter has wrong data type", parent, field)
			return errcode.ParamDataType(Path(parent, field), t.String())
		}
	}
	return nil
}

// RequireEnumeratedValues checks fields holding a non-empty string against
// the allowed values for that field. Absent, empty and non-string values are
// accepted; presence is not enforced here.
func (v *Validator) RequireEnumeratedValues(ctx context.Context, m value.Mapping, fields []string, allowed map[string][]string, parent string) error {
	for _, field := range fields {
		s, ok := value.String(m, field)
		if !ok || s == "" {
			continue
		}
		if !slices.Contains(allowed[field], s) {
			v.reject(ctx, "parameter value not allowed", parent, field)
			return errcode.InvalidParamValue(s, Path(parent, field))
		}
	}
	return nil
}

// Apply evaluates rules in order, stopping at the first failure.
func (v *Validator) Apply(ctx context.Context, m value.Mapping, rules []Rule, parent string) error {
	for _, r := range rules {
		fields := []string{r.Field}
		var err error
		if r.Mandatory {
			err = v.RequireMandatoryTyped(ctx, m, fields, r.Type, r.RequireNonEmpty, parent)
		} else {
			err = v.RequireOptionalTyped(ctx, m, fields, r.Type, parent)
		}
		if err != nil {
			return err
		}
		if len(r.AllowedValues) > 0 {
			allowed := map[string][]string{r.Field: r.AllowedValues}
			if err := v.RequireEnumeratedValues(ctx, m, fields, allowed, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) requirePresent(ctx context.Context, raw any, t Type, field, parent string) error {
	empty := false
	switch t {
	case TypeString:
		s, _ := raw.(string)
		empty = value.IsBlank(s)
	case TypeMap:
		empty = len(value.NormalizeMapping(raw)) == 0
	case TypeSequence:
		seq, err := value.WalkSequence(raw)
		if err != nil {
			v.logger.ErrorContext(ctx, "could not determine sequence emptiness",
				logging.Field(Path(parent, field)), logging.Error(err))
			if v.policy == MissingOnUndetermined {
				return errcode.MandatoryParamMissing(field, parent)
			}
			return errcode.InvalidRequestData()
		}
		empty = len(seq) == 0
	}
	if empty {
		v.reject(ctx, "mandatory parameter empty", parent, field)
		return errcode.MandatoryParamMissing(field, parent)
	}
	return nil
}

func (v *Validator) reject(ctx context.Context, msg, parent, field string) {
	v.logger.ErrorContext(ctx, msg, logging.Field(Path(parent, field)))
}

func conforms(raw any, t Type) bool {
	switch t {
	case TypeString:
		_, ok := raw.(string)
		return ok
	case TypeMap:
		_, ok := raw.(value.Mapping)
		return ok
	case TypeSequence:
		return value.IsSequence(raw)
	default:
		return false
	}
}
