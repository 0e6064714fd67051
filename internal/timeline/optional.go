package timeline

import (
	"bytes"
	"encoding/json"
)

// Optional is a patch field. The zero value means the field was omitted.
// Set with Null means the caller asked for the field to be cleared.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// HasValue reports a present, non-null field.
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// applyRequired copies a non-nullable patch field onto dst.
func applyRequired[T any](dst *T, o Optional[T], field string) error {
	if !o.Set {
		return nil
	}
	if o.Null {
		return errNotNullable(field)
	}
	*dst = o.Value
	return nil
}

// applyNullable copies a nullable patch field onto dst, clearing it on null.
func applyNullable[T any](dst **T, o Optional[T]) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}
