// File: internal/handleset/handleset.go
// Author: momentics <momentics@gmail.com>
//
// Bounded monotonically-advancing handle allocator: advances a cursor,
// wraps at the configured limit, and skips ids currently live. Mirrors
// CAmSocketHandler::nextHandle's sh_identifier cursor-and-set scheme.

package handleset

import "errors"

// ErrTooMany is returned once a full cursor pass finds no free id.
var ErrTooMany = errors.New("handleset: no free handle, all in use")

// Set is a bounded id allocator. Zero value is not usable; use New.
type Set struct {
	limit  uint16
	cursor uint16
	live   map[uint16]struct{}
}

// New creates an allocator for handles in [1, limit].
func New(limit uint16) *Set {
	if limit == 0 {
		limit = 1
	}
	return &Set{limit: limit, live: make(map[uint16]struct{})}
}

// Next advances the cursor, wrapping at limit, and returns the first id not
// currently live. Handle 0 is never returned. Fails with ErrTooMany after a
// full cycle finds every id occupied.
func (s *Set) Next() (uint16, error) {
	for i := uint16(0); i < s.limit; i++ {
		s.cursor++
		if s.cursor > s.limit {
			s.cursor = 1
		}
		if _, used := s.live[s.cursor]; !used {
			s.live[s.cursor] = struct{}{}
			return s.cursor, nil
		}
	}
	return 0, ErrTooMany
}

// Release frees a handle, making it eligible for reuse on a later cursor pass.
func (s *Set) Release(h uint16) {
	delete(s.live, h)
}

// Contains reports whether h is currently allocated.
func (s *Set) Contains(h uint16) bool {
	_, ok := s.live[h]
	return ok
}

// Len returns the number of currently-live handles.
func (s *Set) Len() int { return len(s.live) }
