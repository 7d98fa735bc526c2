package persona

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyRegistry is returned when a registry would contain no personas.
var ErrEmptyRegistry = errors.New("persona registry is empty")

// Store exposes persona retrieval for HTTP handlers and the orchestration core.
type Store interface {
	List() []Persona
	Keys() []Key
	FindByKey(key Key) (Persona, bool)
	Resolve(tag string) (Persona, bool)
}

// MemoryStore implements Store with an immutable lookup table built at process start.
type MemoryStore struct {
	items []Persona
	byKey map[Key]int
	// lowercase key -> index, for @mention and model output matching
	byTag map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) (*MemoryStore, error) {
	if len(items) == 0 {
		return nil, ErrEmptyRegistry
	}

	s := &MemoryStore{
		items: append([]Persona(nil), items...),
		byKey: make(map[Key]int, len(items)),
		byTag: make(map[string]int, len(items)),
	}
	for i, item := range s.items {
		if strings.TrimSpace(string(item.Key)) == "" {
			return nil, fmt.Errorf("persona at index %d has no key", i)
		}
		if strings.ContainsAny(string(item.Key), " @\t\n") {
			return nil, fmt.Errorf("persona key %q contains whitespace or '@'", item.Key)
		}
		tag := strings.ToLower(string(item.Key))
		if _, dup := s.byTag[tag]; dup {
			return nil, fmt.Errorf("duplicate persona key %q", item.Key)
		}
		s.byKey[item.Key] = i
		s.byTag[tag] = i
	}
	return s, nil
}

// MustMemoryStore is NewMemoryStore for static tables known to be valid.
func MustMemoryStore(items []Persona) *MemoryStore {
	s, err := NewMemoryStore(items)
	if err != nil {
		panic(err)
	}
	return s
}

// List returns the registry in declaration order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// Keys returns every registered key in declaration order.
func (s *MemoryStore) Keys() []Key {
	keys := make([]Key, len(s.items))
	for i, item := range s.items {
		keys[i] = item.Key
	}
	return keys
}

// FindByKey looks up a persona by its exact key.
func (s *MemoryStore) FindByKey(key Key) (Persona, bool) {
	idx, ok := s.byKey[key]
	if !ok {
		return Persona{}, false
	}
	return s.items[idx], true
}

// Resolve matches free text such as "cfo" or "@CFO" against the registry keys,
// ignoring case.
func (s *MemoryStore) Resolve(tag string) (Persona, bool) {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "@"))
	idx, ok := s.byTag[tag]
	if !ok {
		return Persona{}, false
	}
	return s.items[idx], true
}
