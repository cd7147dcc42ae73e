// Package value normalizes loosely typed payload data into the canonical
// shapes used by every other package: Sequence ([]any) and Mapping
// (map[string]any).
//
// Payloads reach the service from more than one producer. JSON decoding
// yields canonical containers already, but CBOR decoding yields
// map[interface{}]interface{}, Go callers hand over typed slices, and
// embedding runtimes hand over their own iterator objects. All of them are
// walked here, once, at the ingress boundary.
//
// Conversion is fail-soft: a foreign collection that cannot be walked
// normalizes to an empty container rather than an error. Nil input always
// normalizes to nil so callers can tell "absent" from "empty". The Walk
// variants expose the failure for callers that need to know about it.
package value

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
)

// Sequence is the canonical ordered collection.
type Sequence = []any

// Mapping is the canonical string-keyed collection.
type Mapping = map[string]any

// Iterator is the single-pass cursor exposed by foreign collections.
type Iterator interface {
	HasNext() bool
	Next() (any, error)
}

// Iterable is implemented by foreign collections. Mapping iterables yield
// Pair elements.
type Iterable interface {
	Iterator() Iterator
}

// Pair is a key/value element yielded by a foreign mapping.
type Pair interface {
	Key() any
	Value() any
}

var (
	// ErrNotCollection is reported when the input has no iteration capability.
	ErrNotCollection = errors.New("value is not a collection")

	// ErrNotPair is reported when a mapping iterable yields a non-pair element.
	ErrNotPair = errors.New("mapping element is not a key/value pair")

	// ErrKeyType is reported when a mapping key is not a string.
	ErrKeyType = errors.New("mapping key is not a string")
)

// NormalizeSequence returns v as a Sequence. Canonical sequences are returned
// unchanged, nil returns nil, and a foreign collection that fails to convert
// returns an empty Sequence.
func NormalizeSequence(v any) Sequence {
	seq, err := WalkSequence(v)
	if err != nil {
		return Sequence{}
	}
	return seq
}

// NormalizeMapping returns v as a Mapping with the same contract as
// NormalizeSequence.
func NormalizeMapping(v any) Mapping {
	m, err := WalkMapping(v)
	if err != nil {
		return Mapping{}
	}
	return m
}

// WalkSequence converts v to a Sequence, reporting any failure met while
// walking a foreign collection. The source is borrowed for the duration of
// the call and iterated exactly once.
func WalkSequence(v any) (out Sequence, err error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(Sequence); ok {
		return s, nil
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("walk %T: %v", v, r)
		}
	}()

	switch src := v.(type) {
	case Iterable:
		return drain(src.Iterator())
	case iter.Seq[any]:
		out = Sequence{}
		for e := range src {
			out = append(out, e)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out = make(Sequence, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotCollection, v)
}

// WalkMapping converts v to a Mapping, reporting any failure met while
// walking a foreign collection. When the source yields a key more than once
// the last value wins.
func WalkMapping(v any) (out Mapping, err error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(Mapping); ok {
		return m, nil
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("walk %T: %v", v, r)
		}
	}()

	switch src := v.(type) {
	case Iterable:
		return drainPairs(src.Iterator())
	case iter.Seq2[string, any]:
		out = Mapping{}
		for k, e := range src {
			out[k] = e
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("%w: %T", ErrNotCollection, v)
	}
	out = make(Mapping, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		key, err := stringKey(it.Key().Interface())
		if err != nil {
			return nil, err
		}
		out[key] = it.Value().Interface()
	}
	return out, nil
}

func drain(it Iterator) (Sequence, error) {
	out := Sequence{}
	if it == nil {
		return out, nil
	}
	for it.HasNext() {
		e, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func drainPairs(it Iterator) (Mapping, error) {
	out := Mapping{}
	if it == nil {
		return out, nil
	}
	for it.HasNext() {
		e, err := it.Next()
		if err != nil {
			return nil, err
		}
		p, ok := e.(Pair)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotPair, e)
		}
		key, err := stringKey(p.Key())
		if err != nil {
			return nil, err
		}
		out[key] = p.Value()
	}
	return out, nil
}

func stringKey(k any) (string, error) {
	if s, ok := k.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %T", ErrKeyType, k)
}
