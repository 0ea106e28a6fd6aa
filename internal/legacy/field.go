package legacy

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// Field is a legacy value together with whether the key was set at all.
// A JSON null counts as unset.
type Field[T any] struct {
	Value   T
	Present bool
}

// Some returns a present field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Present: true}
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*f = Field[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Field[T]{Value: v, Present: true}
	return nil
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Present {
		return jsonNull, nil
	}
	return json.Marshal(f.Value)
}

// Text accepts any JSON scalar and keeps its string form. Older releases
// stored ports and flags as numbers or strings interchangeably.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*t = Text(v)
	case float64:
		*t = Text(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		if v {
			*t = "1"
		} else {
			*t = ""
		}
	default:
		*t = ""
	}
	return nil
}

// Flag is a boolean decoded with PHP truthiness: false, 0, "", "0" and null
// are false, anything else is true.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*f = Flag(v)
	case float64:
		*f = v != 0
	case string:
		*f = v != "" && v != "0"
	case []any:
		*f = len(v) > 0
	case map[string]any:
		*f = len(v) > 0
	default:
		*f = false
	}
	return nil
}

// Trimmed returns the trimmed text value of a field, empty when unset.
func (f Field[T]) Trimmed() string {
	if !f.Present {
		return ""
	}
	switch v := any(f.Value).(type) {
	case Text:
		return strings.TrimSpace(string(v))
	case string:
		return strings.TrimSpace(v)
	}
	return ""
}
