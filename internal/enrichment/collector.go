package enrichment

import (
	"slices"
	"strings"
)

// Set is an unordered, duplicate-free collection of foreign identifiers.
type Set[K ~string] map[K]struct{}

// NewSet builds a set from ids, skipping blanks.
func NewSet[K ~string](ids ...K) Set[K] {
	set := make(Set[K], len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts id unless it is blank.
func (s Set[K]) Add(id K) {
	if strings.TrimSpace(string(id)) == "" {
		return
	}
	s[id] = struct{}{}
}

// Has reports membership.
func (s Set[K]) Has(id K) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (s Set[K]) Len() int {
	return len(s)
}

// Sorted returns the identifiers in ascending order so request payloads are stable.
func (s Set[K]) Sorted() []K {
	ids := make([]K, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Collect gathers the deduplicated foreign identifiers referenced by records.
func Collect[R any, K ~string](records []R, extract func(R) []K) Set[K] {
	set := make(Set[K])
	if extract == nil {
		return set
	}
	for _, record := range records {
		for _, id := range extract(record) {
			set.Add(id)
		}
	}
	return set
}
