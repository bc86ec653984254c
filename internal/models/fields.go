package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Fields is an insertion-ordered mapping of field name to value. The zero value is empty and ready to use.
type Fields struct {
	keys   []string
	values map[string]interface{}
}

// NewFields builds Fields from alternating name/value pairs.
func NewFields(pairs ...interface{}) Fields {
	var f Fields
	for i := 0; i+1 < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			continue
		}
		f.Set(name, pairs[i+1])
	}
	return f
}

// FieldsFromMap copies m, placing keys listed in order first and the rest in sorted order.
func FieldsFromMap(m map[string]interface{}, order []string) Fields {
	var f Fields
	for _, key := range order {
		if v, ok := m[key]; ok {
			f.Set(key, v)
		}
	}
	rest := make([]string, 0, len(m))
	for key := range m {
		if !f.Has(key) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		f.Set(key, m[key])
	}
	return f
}

// Len returns the number of fields.
func (f Fields) Len() int { return len(f.keys) }

// Keys returns field names in order.
func (f Fields) Keys() []string {
	return append([]string(nil), f.keys...)
}

// Get returns the value for name.
func (f Fields) Get(name string) (interface{}, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Has reports whether name is present.
func (f Fields) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// String returns the value for name rendered as text, or "" when absent.
func (f Fields) String(name string) string {
	v, ok := f.values[name]
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Set assigns a value, appending the name when new and keeping its position otherwise.
func (f *Fields) Set(name string, value interface{}) {
	if f.values == nil {
		f.values = make(map[string]interface{})
	}
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
	}
	f.values[name] = value
}

// Delete removes name if present.
func (f *Fields) Delete(name string) {
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, key := range f.keys {
		if key == name {
			f.keys = append(f.keys[:i:i], f.keys[i+1:]...)
			break
		}
	}
}

// Merge returns a copy of f with every key of patch replaced or appended.
func (f Fields) Merge(patch Fields) Fields {
	merged := f.Clone()
	for _, key := range patch.keys {
		merged.Set(key, patch.values[key])
	}
	return merged
}

// Clone returns an independent copy. Nested slices and maps are copied one level deep.
func (f Fields) Clone() Fields {
	clone := Fields{keys: append([]string(nil), f.keys...)}
	if f.values != nil {
		clone.values = make(map[string]interface{}, len(f.values))
		for k, v := range f.values {
			clone.values[k] = cloneValue(v)
		}
	}
	return clone
}

// Map returns a plain map copy.
func (f Fields) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(f.keys))
	for _, key := range f.keys {
		m[key] = f.values[key]
	}
	return m
}

// MarshalJSON writes the fields as a JSON object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order of the document. Integral
// numbers decode as int and other numbers as float64, at any nesting depth.
func (f *Fields) UnmarshalJSON(data []byte) error {
	*f = Fields{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: expected string key")
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("fields: decode %s: %w", key, err)
		}
		f.Set(key, normalizeNumbers(value))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 0); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []interface{}:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}

// Stringify renders a field value the way search and exports see it.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		var buf bytes.Buffer
		for i, item := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(Stringify(item))
		}
		return buf.String()
	case []string:
		var buf bytes.Buffer
		for i, item := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(item)
		}
		return buf.String()
	default:
		return fmt.Sprint(t)
	}
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		return append([]interface{}(nil), t...)
	case []string:
		return append([]string(nil), t...)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = val
		}
		return m
	default:
		return v
	}
}
