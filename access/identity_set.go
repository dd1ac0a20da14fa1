package access

import (
	"sync"

	"github.com/BonsonW/renetsteam/sdk"
)

// IdentitySet is a set of SteamIDs safe for concurrent use, so an allow-list
// can be edited by the host while the transport reads it.
type IdentitySet struct {
	mu sync.RWMutex
	m  map[sdk.SteamID]struct{}
}

// NewIdentitySet returns a set holding ids.
func NewIdentitySet(ids ...sdk.SteamID) *IdentitySet {
	s := &IdentitySet{m: make(map[sdk.SteamID]struct{}, len(ids))}
	for _, id := range ids {
		s.m[id] = struct{}{}
	}

	return s
}

// Add inserts id.
func (s *IdentitySet) Add(id sdk.SteamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = struct{}{}
}

// Remove deletes id. Removing an absent id is a no-op.
func (s *IdentitySet) Remove(id sdk.SteamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

// Contains reports whether id is in the set.
func (s *IdentitySet) Contains(id sdk.SteamID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[id]
	return ok
}

// Size returns the number of identities in the set.
func (s *IdentitySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Values returns a snapshot of the set in unspecified order.
func (s *IdentitySet) Values() []sdk.SteamID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sdk.SteamID, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}

	return out
}
