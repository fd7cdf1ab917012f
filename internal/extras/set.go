package extras

import (
	"fmt"
	"slices"
)

// Set holds the extras of one kind keyed by normalized key. A Set is built by
// a single goroutine and then read concurrently; Add must not be called once
// readers start.
type Set struct {
	kind    Kind
	entries map[string]Extra
	keys    []string // sorted
}

// NewSet returns an empty set for kind.
func NewSet(kind Kind) *Set {
	return &Set{kind: kind, entries: make(map[string]Extra)}
}

// Kind returns the kind every member shares.
func (s *Set) Kind() Kind {
	return s.kind
}

// Keying returns the key space of the set.
func (s *Set) Keying() Keying {
	return s.kind.Keying()
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Add inserts e under its normalized key and reports whether it was stored.
// For latest kinds a colliding key keeps the higher episode; for other kinds
// the first insert wins. Extras with an empty normalized key are dropped.
func (s *Set) Add(e Extra) (bool, error) {
	if e.Kind != s.kind {
		return false, fmt.Errorf("extra kind %s does not match set kind %s", e.Kind, s.kind)
	}
	if err := e.Validate(); err != nil {
		return false, err
	}
	key := NormalizeKey(s.Keying(), e.Key)
	if key == "" {
		return false, nil
	}
	if existing, ok := s.entries[key]; ok {
		if e.episode() <= existing.episode() {
			return false, nil
		}
		s.entries[key] = e
		return true, nil
	}
	s.entries[key] = e
	pos, _ := slices.BinarySearch(s.keys, key)
	s.keys = slices.Insert(s.keys, pos, key)
	return true, nil
}

// Lookup normalizes key and returns the stored extra.
func (s *Set) Lookup(key string) (Extra, bool) {
	if s == nil {
		return Extra{}, false
	}
	normalized := NormalizeKey(s.Keying(), key)
	if normalized == "" {
		return Extra{}, false
	}
	e, ok := s.entries[normalized]
	return e, ok
}

// Get returns the extra stored under an already-normalized key.
func (s *Set) Get(normalizedKey string) (Extra, bool) {
	if s == nil {
		return Extra{}, false
	}
	e, ok := s.entries[normalizedKey]
	return e, ok
}

// Keys returns the normalized keys in ascending order. The slice is shared;
// callers must not modify it.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	return s.keys
}
