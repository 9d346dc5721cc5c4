// Package docmap maps dense model indices to external document identities.
package docmap

import (
	"fmt"

	"topicidx/internal/domain"
)

// Map is a bijection between positions 0..N-1 and document ids. It is
// immutable once built.
type Map struct {
	ids     []string
	reverse map[string]int
}

// Build creates a Map from ids in order. Duplicate or empty ids are rejected.
func Build(ids []string) (*Map, error) {
	m := &Map{
		ids:     make([]string, len(ids)),
		reverse: make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: empty document id at position %d", domain.ErrInvalidInput, i)
		}
		if prev, dup := m.reverse[id]; dup {
			return nil, fmt.Errorf("%w: duplicate document id %q at positions %d and %d",
				domain.ErrInvalidInput, id, prev, i)
		}
		m.ids[i] = id
		m.reverse[id] = i
	}
	return m, nil
}

// FromCleaned builds a Map from cleaned documents, which must already be in
// original order.
func FromCleaned(docs []domain.CleanedDocument) (*Map, error) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		if i > 0 && d.Position <= docs[i-1].Position {
			return nil, fmt.Errorf("%w: documents out of order at position %d", domain.ErrInvalidInput, i)
		}
		ids[i] = d.ID
	}
	return Build(ids)
}

// ResolveReverse returns the id stored at index i.
func (m *Map) ResolveReverse(i int) (string, error) {
	if i < 0 || i >= len(m.ids) {
		return "", fmt.Errorf("%w: document index %d out of range [0,%d)", domain.ErrNotFound, i, len(m.ids))
	}
	return m.ids[i], nil
}

// Resolve returns the index of id.
func (m *Map) Resolve(id string) (int, error) {
	i, ok := m.reverse[id]
	if !ok {
		return 0, fmt.Errorf("%w: document %q", domain.ErrNotFound, id)
	}
	return i, nil
}

// Len returns N.
func (m *Map) Len() int {
	return len(m.ids)
}

// Identities returns a copy of the ids in index order.
func (m *Map) Identities() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}
