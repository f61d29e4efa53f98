// Package fields holds the loosely typed documents exchanged with the model
// and the helpers that normalize them into scoring fields.
package fields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ecodeclub/ekit/mapx"
)

// Map is a string-keyed map that remembers insertion order. Missing keys read
// as nil; unknown keys are carried along untouched. The zero value is ready
// to use.
type Map struct {
	entries *mapx.LinkedMap[string, any]
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{entries: newEntries()}
}

func newEntries() *mapx.LinkedMap[string, any] {
	// Only a nil comparator is rejected.
	entries, _ := mapx.NewLinkedTreeMap[string, any](strings.Compare)
	return entries
}

// FromMap copies src in sorted key order. Callers that care about order
// should build the map with Set or decode it from JSON instead.
func FromMap(src map[string]any) *Map {
	m := NewMap()
	for _, key := range sortedKeys(src) {
		m.Set(key, src[key])
	}
	return m
}

// Set stores value under key. An existing key keeps its position.
func (m *Map) Set(key string, value any) {
	if m.entries == nil {
		m.entries = newEntries()
	}
	// The tree map only fails on duplicate nodes, which Put handles itself.
	_ = m.entries.Put(key, value)
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.entries == nil {
		return nil, false
	}
	return m.entries.Get(key)
}

// Has reports whether key is present, regardless of its value.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.Delete(key)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil || m.entries == nil {
		return nil
	}
	return m.entries.Keys()
}

func (m *Map) Len() int {
	if m == nil || m.entries == nil {
		return 0
	}
	return int(m.entries.Len())
}

// Clone returns a copy with the same key order. Values are shared.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		out.Set(key, value)
	}
	return out
}

// Plain returns an unordered copy suitable for decoders that want map[string]any.
func (m *Map) Plain() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil || m.entries == nil {
		return out
	}
	m.entries.Iterate(func(key string, value any) bool {
		out[key] = value
		return true
	})
	return out
}

func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var (
		buf bytes.Buffer
		err error
	)
	buf.WriteByte('{')
	for i, key := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		value, _ := m.Get(key)

		var k, v []byte
		if k, err = json.Marshal(key); err != nil {
			return nil, err
		}
		if v, err = json.Marshal(value); err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the order of the top-level object. Nested objects are
// decoded as plain map[string]any.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	m.entries = newEntries()

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode field %q: %w", key, err)
		}
		m.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	return nil
}

// Parse decodes a JSON object into a Map. Trailing content is rejected.
func Parse(data []byte) (*Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}

	m := NewMap()
	if err := m.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return m, nil
}
