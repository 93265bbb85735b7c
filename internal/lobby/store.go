// internal/lobby/store.go
package lobby

import (
	"sync"
	"sync/atomic"
)

// Store is the authoritative in-memory registry of all lobbies, keyed by
// community and then by lobby ID. One Store is constructed at process start
// and passed to every handler; there is no package-level instance.
//
// A single mutex guards every read-modify-write sequence against lobby
// state. The central discipline: the lock is never held across a network
// call, a database write, or a notification send. Callers that need a
// multi-step critical section take Mu themselves and use the Unsafe
// variants, in the same style as the rest of this package.
type Store struct {
	Mu sync.Mutex

	nextID      atomic.Int64
	communities map[string]map[int64]*Lobby
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{
		communities: make(map[string]map[int64]*Lobby),
	}
}

// AllocateID hands out the next lobby ID. IDs are monotonic and never
// reused. Safe to call without holding Mu; it only touches the counter.
func (s *Store) AllocateID() int64 {
	return s.nextID.Add(1)
}

// LobbiesForUnsafe returns the live id->lobby map for a community, creating
// an empty one on first access. Assumes Mu is held.
func (s *Store) LobbiesForUnsafe(communityID string) map[int64]*Lobby {
	m, ok := s.communities[communityID]
	if !ok {
		m = make(map[int64]*Lobby)
		s.communities[communityID] = m
	}
	return m
}

// ViewUnsafe returns the community's map without allocating, or nil if the
// community has no lobbies. Read paths use this. Assumes Mu is held.
func (s *Store) ViewUnsafe(communityID string) map[int64]*Lobby {
	return s.communities[communityID]
}

// GetUnsafe looks a lobby up by ID. Assumes Mu is held.
func (s *Store) GetUnsafe(communityID string, lobbyID int64) (*Lobby, bool) {
	l, ok := s.communities[communityID][lobbyID]
	return l, ok
}

// FindLobbyForMemberUnsafe scans a community for the lobby holding the
// member, skipping exclude if non-nil. Linear scan; a member is in at most
// one active lobby per community, enforced by callers checking this before
// seating anyone. Assumes Mu is held.
func (s *Store) FindLobbyForMemberUnsafe(communityID, memberID string, exclude *Lobby) *Lobby {
	for _, l := range s.communities[communityID] {
		if l == exclude {
			continue
		}
		if l.HasPlayer(memberID) {
			return l
		}
	}
	return nil
}

// IsActiveUnsafe reports whether the given lobby record is still the live
// entry stored under its ID. This is the liveness re-check every
// post-suspension reconciliation step runs: a stale pointer to a removed or
// replaced lobby fails it. Assumes Mu is held.
func (s *Store) IsActiveUnsafe(l *Lobby) bool {
	if l == nil {
		return false
	}
	cur, ok := s.communities[l.CommunityID][l.ID]
	return ok && cur == l
}

// RemoveUnsafe deletes a lobby by ID, dropping the community map once it
// empties. Pure bookkeeping. Assumes Mu is held.
func (s *Store) RemoveUnsafe(communityID string, lobbyID int64) {
	m, ok := s.communities[communityID]
	if !ok {
		return
	}
	delete(m, lobbyID)
	if len(m) == 0 {
		delete(s.communities, communityID)
	}
}

// AddUnsafe inserts a lobby under its ID. Assumes Mu is held.
func (s *Store) AddUnsafe(l *Lobby) {
	s.LobbiesForUnsafe(l.CommunityID)[l.ID] = l
}

// Get is the lock-acquiring lookup for read-only callers.
func (s *Store) Get(communityID string, lobbyID int64) (*Lobby, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.GetUnsafe(communityID, lobbyID)
}
