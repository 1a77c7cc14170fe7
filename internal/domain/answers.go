package domain

import (
	"encoding/json"
	"fmt"
)

// FieldValue is a single survey answer: either a scalar or an ordered list
// of strings. The closed union keeps merge semantics checkable even though
// the survey's field set itself is open-ended.
type FieldValue struct {
	Scalar string
	List   []string
	IsList bool
}

// StringValue creates a scalar field value.
func StringValue(s string) FieldValue {
	return FieldValue{Scalar: s}
}

// ListValue creates an ordered multi-value field.
func ListValue(items ...string) FieldValue {
	return FieldValue{List: items, IsList: true}
}

// MarshalJSON encodes a scalar as a JSON string and a list as a JSON array.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		if v.List == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON accepts a JSON string or an array of strings. Anything else
// is rejected so corrupt cached payloads surface as decode errors.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = ListValue(list...)
		return nil
	}

	return fmt.Errorf("field value must be a string or an array of strings, got %s", data)
}

// Equal reports whether two field values carry the same answer.
func (v FieldValue) Equal(other FieldValue) bool {
	if v.IsList != other.IsList {
		return false
	}
	if !v.IsList {
		return v.Scalar == other.Scalar
	}
	if len(v.List) != len(other.List) {
		return false
	}
	for i := range v.List {
		if v.List[i] != other.List[i] {
			return false
		}
	}
	return true
}

// Answers maps survey field names to their current values.
type Answers map[string]FieldValue

// Merge returns a new Answers with every field from partial overwriting the
// same field in a (last write wins per field). Neither input is mutated.
func (a Answers) Merge(partial Answers) Answers {
	merged := a.Clone()
	for name, value := range partial {
		merged[name] = value
	}
	return merged
}

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	cloned := make(Answers, len(a))
	for name, value := range a {
		if value.IsList {
			list := make([]string, len(value.List))
			copy(list, value.List)
			value.List = list
		}
		cloned[name] = value
	}
	return cloned
}
