package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the payload value types.
// Only Null, String, Int, Bool, Array and Object implement it.
// There is no float type: floating point text has no single canonical form.
type Value interface {
	payloadValue()
}

// Null is an explicit JSON null.
type Null struct{}

func (Null) payloadValue() {}

// String is a string value.
type String string

func (String) payloadValue() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) payloadValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) payloadValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) payloadValue() {}

// Object is a map of string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) payloadValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units) of their
// NFC forms, the order MarshalCanonical writes them in.
// Go's native string order compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return compareUTF16(norm.NFC.String(a), norm.NFC.String(b))
	})
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON renders the object in canonical form.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// UnmarshalJSON decodes a JSON object, keeping integers exact.
func (obj *Object) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	parsed, err := ParseObject(data)
	if err != nil {
		return err
	}
	*obj = parsed
	return nil
}

// MarshalJSON renders the array in canonical form.
func (arr Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// ParseObject decodes JSON text into an Object.
// Numbers are decoded through json.Number so values above 2^53 keep their
// precision; any number with a fraction or exponent is rejected.
func ParseObject(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode payload: trailing data after object")
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode payload: expected JSON object, got %T", raw)
	}
	return objectFromMap(m)
}

// FromGo converts decoded Go data (from encoding/json, yaml.v3 or literal
// maps) into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
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
		return uintValue(uint64(val))
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return uintValue(val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an int64: floats are forbidden in payloads", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in payloads: %v", val)
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
		return objectFromMap(val)
	case map[string]string:
		obj := make(Object, len(val))
		for k, s := range val {
			obj[k] = String(s)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported payload type: %T", v)
	}
}

// ObjectFromGo converts a Go map into an Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	return objectFromMap(m)
}

func objectFromMap(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, elem := range m {
		conv, err := FromGo(elem)
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		obj[k] = conv
	}
	return obj, nil
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

// ToGo converts a Value back into plain Go data (nil, string, int64, bool,
// []any, map[string]any). Used by the event catalog to hand payloads to CUE.
func ToGo(v Value) any {
	switch val := v.(type) {
	case Null, nil:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
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
