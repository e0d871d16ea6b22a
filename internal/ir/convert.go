package ir

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// FromGo converts a decoded Go value (from YAML, JSON or literals) to a Value.
// Maps with non-string keys are accepted when every key is a string,
// which is what yaml.v3 produces for map[any]any.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return CloneValue(val), nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("uint64 %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		if err := checkFinite(float64(val)); err != nil {
			return nil, err
		}
		return Float(val), nil
	case float64:
		if err := checkFinite(val); err != nil {
			return nil, err
		}
		return Float(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key %v (%T)", k, k)
			}
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", key, err)
			}
			obj[key] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromGo converts a Go map to an Object.
// A nil map converts to an empty Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// MustObject is like ObjectFromGo but panics on error.
// Use only in tests or with literal inputs.
func MustObject(m map[string]any) Object {
	obj, err := ObjectFromGo(m)
	if err != nil {
		panic(err)
	}
	return obj
}

// ToGo converts a Value back to plain Go types
// (nil, string, int64, float64, bool, []any, map[string]any).
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// Decode decodes a payload into a typed struct using mapstructure tags.
// Input is weakly typed so an Int payload field can fill a float64.
func Decode(obj Object, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := dec.Decode(ToGo(obj)); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Describe renders a value compactly for logs and text output.
// Object keys are printed in sorted order.
func Describe(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Null:
		return "null"
	case String:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		b, err := formatFloat(float64(val))
		if err != nil {
			return fmt.Sprintf("%v", float64(val))
		}
		return string(b)
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Array:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Describe(elem)
		}
		return fmt.Sprintf("%v", parts)
	case Object:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "{"
		for i, k := range keys {
			if i > 0 {
				s += " "
			}
			s += k + ":" + Describe(val[k])
		}
		return s + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}
