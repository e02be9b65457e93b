package markov

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StateMap is the transition table of a chain. It maps a state key (the
// state's tokens joined by single spaces) to the list of tokens observed to
// follow that state, duplicates included. A token's frequency is the number of
// times it appears in the list.
//
// Keys are kept in insertion order. The order is part of the model: it decides
// the JSON export order and the order start-state candidates are drawn from.
type StateMap struct {
	keys       []string
	successors map[string][]string
}

// NewStateMap returns an empty StateMap.
func NewStateMap() *StateMap {
	return &StateMap{successors: make(map[string][]string)}
}

// Append records one more occurrence of next following the state key,
// creating the entry if it does not exist yet.
func (m *StateMap) Append(key, next string) {
	list, ok := m.successors[key]
	if !ok {
		m.keys = append(m.keys, key)
	}
	m.successors[key] = append(list, next)
}

// Get returns the successor list for key. The returned slice must not be
// modified.
func (m *StateMap) Get(key string) ([]string, bool) {
	list, ok := m.successors[key]
	return list, ok
}

// Len returns the number of states in the map.
func (m *StateMap) Len() int {
	return len(m.keys)
}

// Keys returns the state keys in insertion order.
func (m *StateMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for every state in insertion order until fn returns false.
func (m *StateMap) Range(fn func(key string, successors []string) bool) {
	for _, key := range m.keys {
		if !fn(key, m.successors[key]) {
			return
		}
	}
}

// Clone returns a deep copy of the map.
func (m *StateMap) Clone() *StateMap {
	c := &StateMap{
		keys:       make([]string, len(m.keys)),
		successors: make(map[string][]string, len(m.successors)),
	}
	copy(c.keys, m.keys)
	for key, list := range m.successors {
		dup := make([]string, len(list))
		copy(dup, list)
		c.successors[key] = dup
	}
	return c
}

// Equal reports whether both maps hold the same keys in the same order with
// identical successor lists.
func (m *StateMap) Equal(other *StateMap) bool {
	if len(m.keys) != len(other.keys) {
		return false
	}
	for i, key := range m.keys {
		if other.keys[i] != key {
			return false
		}
		a, b := m.successors[key], other.successors[key]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j] != b[j] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the map as a JSON object whose members appear in key
// insertion order.
func (m *StateMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.successors[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string arrays, keeping the member
// order of the document. Duplicate keys are rejected.
func (m *StateMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("state map must be a JSON object, got %v", tok)
	}

	out := NewStateMap()
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected state key %v", tok)
		}
		if _, dup := out.successors[key]; dup {
			return fmt.Errorf("duplicate state %q", key)
		}
		var list []string
		if err = dec.Decode(&list); err != nil {
			return fmt.Errorf("failed to decode successors of state %q: %w", key, err)
		}
		out.keys = append(out.keys, key)
		out.successors[key] = list
	}
	if _, err = dec.Token(); err != nil {
		return err
	}

	*m = *out
	return nil
}
