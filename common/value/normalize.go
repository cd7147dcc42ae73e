package value

import (
	"iter"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Normalize converts foreign collections nested anywhere under v into
// canonical ones. Native containers are walked too; a native container is
// copied only when one of its descendants had to be converted, so a fully
// canonical input is returned as is and never modified.
func Normalize(v any) any {
	out, _ := normalize(v)
	return out
}

// normalize reports whether the returned value differs from v.
func normalize(v any) (any, bool) {
	switch t := v.(type) {
	case nil, string, bool:
		return v, false
	case Mapping:
		var out Mapping
		for k, e := range t {
			n, changed := normalize(e)
			if !changed {
				continue
			}
			if out == nil {
				out = maps.Clone(t)
			}
			out[k] = n
		}
		if out == nil {
			return t, false
		}
		return out, true
	case Sequence:
		var out Sequence
		for i, e := range t {
			n, changed := normalize(e)
			if !changed {
				continue
			}
			if out == nil {
				out = slices.Clone(t)
			}
			out[i] = n
		}
		if out == nil {
			return t, false
		}
		return out, true
	}
	if IsMapping(v) {
		m := NormalizeMapping(v)
		for k, e := range m {
			m[k], _ = normalize(e)
		}
		return m, true
	}
	if IsSequence(v) {
		s := NormalizeSequence(v)
		for i, e := range s {
			s[i], _ = normalize(e)
		}
		return s, true
	}
	return v, false
}

// Canonical returns a deep copy of v in which every container, native or
// foreign, is canonical. The result can be encoded as JSON. Containers that
// fail to convert become empty, as in NormalizeSequence.
func Canonical(v any) any {
	switch t := v.(type) {
	case nil, string, bool:
		return v
	case Mapping:
		out := make(Mapping, len(t))
		for k, e := range t {
			out[k] = Canonical(e)
		}
		return out
	case Sequence:
		out := make(Sequence, len(t))
		for i, e := range t {
			out[i] = Canonical(e)
		}
		return out
	}
	if IsMapping(v) {
		return Canonical(NormalizeMapping(v))
	}
	if IsSequence(v) {
		return Canonical(NormalizeSequence(v))
	}
	return v
}

// IsSequence reports whether v is a canonical sequence or anything shaped
// like one: an Iterable, an iter.Seq, or a slice or array.
func IsSequence(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case Sequence, iter.Seq[any]:
		return true
	case Iterable:
		return !isPairIterable(v)
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// IsMapping reports whether v is a canonical mapping or a foreign map.
func IsMapping(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case Mapping, iter.Seq2[string, any]:
		return true
	case Iterable:
		return isPairIterable(v)
	}
	return reflect.TypeOf(v).Kind() == reflect.Map
}

// PairIterable marks an Iterable whose elements are Pair values. Foreign
// collections without the marker are treated as sequences.
type PairIterable interface {
	Iterable
	Pairs()
}

func isPairIterable(v any) bool {
	_, ok := v.(PairIterable)
	return ok
}

// String returns m[key] when it holds a string.
func String(m Mapping, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// IsBlank reports whether s is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
