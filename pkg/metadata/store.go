// Package metadata provides a typed attribute store consulted as
// read-only filter criteria when selecting units to operate on.
package metadata

import "sync"

// Store holds typed key/value attributes. The lifecycle core only ever
// reads from a store; writes happen at the discovery boundary.
type Store struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewStore creates an empty attribute store
func NewStore() *Store {
	return &Store{values: make(map[string]interface{})}
}

// Set stores a value under a key
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Lookup returns the value for a key and whether it exists
func (s *Store) Lookup(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether a key is present
func (s *Store) Has(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// GetString returns a string value or the empty string
func (s *Store) GetString(key string) string {
	if v, ok := s.Lookup(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt returns an int value and whether the key held an int
func (s *Store) GetInt(key string) (int, bool) {
	v, ok := s.Lookup(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Len returns the number of stored attributes
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Predicate is a read-only filter over an attribute store
type Predicate func(s *Store) bool

// HasKey matches stores that contain the key
func HasKey(key string) Predicate {
	return func(s *Store) bool {
		return s.Has(key)
	}
}

// Equals matches stores where the key holds exactly the given value
func Equals(key string, value interface{}) Predicate {
	return func(s *Store) bool {
		v, ok := s.Lookup(key)
		return ok && v == value
	}
}

// IntInRange matches stores where the key holds an integer in [lo, hi]
func IntInRange(key string, lo, hi int) Predicate {
	return func(s *Store) bool {
		n, ok := s.GetInt(key)
		return ok && n >= lo && n <= hi
	}
}

// All combines predicates so that every one must match
func All(preds ...Predicate) Predicate {
	return func(s *Store) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}
