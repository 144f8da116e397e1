// Package jsonutil provides typed accessors over decoded JSON objects.
//
// Protocol messages in this library are parsed from loosely-typed provider
// JSON where individual fields may be absent, defaulted, or carried as
// strings or numbers depending on the provider. Centralizing the lookup and
// conversion logic here keeps the read and write paths of every message type
// consistent.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Object is a decoded JSON object with typed field accessors.
type Object map[string]any

// Parse decodes data into an Object. Numbers are preserved as json.Number so
// that 64-bit timestamps survive without float truncation.
func Parse(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj Object
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode JSON object: %w", err)
	}
	return obj, nil
}

// Has reports whether key is present in the object.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value for key, failing if the key is absent or
// mapped to a non-string value.
func (o Object) String(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("field %q not found", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	return s, nil
}

// OptString returns the string value for key, or def if the key is absent.
func (o Object) OptString(key, def string) (string, error) {
	if !o.Has(key) {
		return def, nil
	}
	return o.String(key)
}

// OptBool returns the boolean value for key, or def if the key is absent.
func (o Object) OptBool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is not a boolean", key)
	}
	return b, nil
}

// OptInt64 returns the integer value for key. Providers are inconsistent
// about numeric encoding, so both JSON numbers and numeric strings are
// accepted. The second return value reports whether the key was present.
func (o Object) OptInt64(key string) (int64, bool, error) {
	v, ok := o[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("field %q is not an integer: %w", key, err)
		}
		return i, true, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("field %q is not an integer: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("field %q is not an integer", key)
	}
}

// StringList returns the string array for key, failing if the key is absent.
func (o Object) StringList(key string) ([]string, error) {
	v, ok := o[key]
	if !ok {
		return nil, fmt.Errorf("field %q not found", key)
	}
	return toStringList(key, v)
}

// OptStringList returns the string array for key, or def if the key is absent.
func (o Object) OptStringList(key string, def []string) ([]string, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	return toStringList(key, v)
}

func toStringList(key string, v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q is not an array", key)
	}
	out := make([]string, 0, len(arr))
	for i, elem := range arr {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("field %q element %d is not a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// StringMap returns the nested object for key flattened to string values.
// An absent key yields an empty map.
func (o Object) StringMap(key string) (map[string]string, error) {
	v, ok := o[key]
	if !ok {
		return map[string]string{}, nil
	}
	nested, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %q is not an object", key)
	}
	out := make(map[string]string, len(nested))
	for k, val := range nested {
		s, err := Stringify(val)
		if err != nil {
			return nil, fmt.Errorf("field %q entry %q: %w", key, k, err)
		}
		out[k] = s
	}
	return out, nil
}

// Stringify converts a decoded scalar JSON value to its string form.
// Nested arrays and objects are rejected.
func Stringify(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("value is not a scalar")
	}
}
