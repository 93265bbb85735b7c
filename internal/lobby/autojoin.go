// internal/lobby/autojoin.go
package lobby

import (
	"context"
	"sort"
	"time"
)

// AutojoinRequest asks the matcher to fit a newcomer (optionally with
// invited friends) into an existing open lobby.
type AutojoinRequest struct {
	CommunityID string
	// ChannelID is where the request originated; same-origin lobbies are
	// preferred, and the configured origin gate is checked against it.
	ChannelID  string
	MemberID   string
	InvitedIDs []string
}

// Autojoin scans open lobbies in preference order and attempts an atomic
// join on the first acceptable candidate. matched is false when no
// candidate fits and the caller should create a fresh lobby instead; a
// non-OK result with matched true means the request terminally failed
// (already seated, or a rated group fallback surfaced per-member failures)
// and the caller must not fall through to creating a lobby.
func (s *Service) Autojoin(ctx context.Context, req AutojoinRequest) (Result, bool) {
	// Restricted-origin gate: outside the configured channel the matcher
	// does not even scan.
	if s.opts.AutojoinOriginChannel != "" && req.ChannelID != s.opts.AutojoinOriginChannel {
		return Result{Status: StatusNoMatch, Reason: "autojoin is not available here"}, false
	}

	members := dedupeMembers(append([]string{req.MemberID}, req.InvitedIDs...))

	// Rating snapshots are fetched before the lock; rated candidates need
	// them and the scan must not suspend.
	ratings := s.lookupRatings(ctx, req.CommunityID, members)
	now := s.now()

	s.store.Mu.Lock()
	if s.store.FindLobbyForMemberUnsafe(req.CommunityID, req.MemberID, nil) != nil {
		s.store.Mu.Unlock()
		return failResult(StatusAlreadyInLobby), true
	}

	candidates := s.candidatesUnsafe(req.CommunityID, req.ChannelID)

	var plan joinPlan
	var res Result
	matched := false
	if len(members) > 1 {
		plan, res, matched = s.matchGroupUnsafe(candidates, members, ratings, now)
	} else {
		plan, res, matched = s.matchSoloUnsafe(candidates, members, ratings, now)
	}
	s.store.Mu.Unlock()

	if !matched || res.Status != StatusOK {
		return res, matched
	}
	return s.executeJoinPlan(ctx, plan), true
}

// candidatesUnsafe builds the ordered candidate list: open, still-active
// lobbies, filtered to the restricted origin when one is configured,
// same-origin lobbies first and then oldest-first so long-waiting lobbies
// drain before new ones start contending. Assumes Mu is held.
func (s *Service) candidatesUnsafe(communityID, channelID string) []*Lobby {
	var out []*Lobby
	for _, l := range s.store.ViewUnsafe(communityID) {
		if l.IsFull() {
			continue
		}
		if s.opts.AutojoinOriginChannel != "" && l.OriginChannelID != s.opts.AutojoinOriginChannel {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		iOrigin := out[i].OriginChannelID == channelID
		jOrigin := out[j].OriginChannelID == channelID
		if iOrigin != jOrigin {
			return iOrigin
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// matchGroupUnsafe handles the invited-friends path. Non-rated lobbies are
// the only ones eligible for a one-step group join; rated lobbies are a
// fallback taken only when every member individually clears that lobby's
// floor, and a failed fallback surfaces per-member reasons instead of
// falling through to lobby creation. Assumes Mu is held.
func (s *Service) matchGroupUnsafe(candidates []*Lobby, members []string, ratings map[string]memberRating, now time.Time) (joinPlan, Result, bool) {
	for _, l := range candidates {
		if l.RatingMode || l.SeatsLeft() < len(members) {
			continue
		}
		plan, res := s.joinGroupUnsafe(l, members, ratings, now)
		if res.Status == StatusOK {
			return plan, res, true
		}
		if res.Status == StatusAlreadyInLobby || res.Status == StatusAlreadyMember {
			// Member-specific failure; no other candidate can fix it.
			return joinPlan{}, res, true
		}
	}

	for _, l := range candidates {
		if !l.RatingMode || l.SeatsLeft() < len(members) {
			continue
		}
		plan, res := s.joinGroupUnsafe(l, members, ratings, now)
		switch res.Status {
		case StatusOK:
			return plan, res, true
		case StatusRatingIneligible, StatusAlreadyInLobby, StatusAlreadyMember:
			// The group stays together: surface the failures, never split.
			return joinPlan{}, res, true
		}
	}
	return joinPlan{}, Result{Status: StatusNoMatch, Reason: "no open lobby fits the group"}, false
}

// matchSoloUnsafe scans candidates in preference order for a single
// requester, skipping rated lobbies whose floor the requester cannot meet.
// Assumes Mu is held.
func (s *Service) matchSoloUnsafe(candidates []*Lobby, members []string, ratings map[string]memberRating, now time.Time) (joinPlan, Result, bool) {
	for _, l := range candidates {
		if l.RatingMode {
			mr := ratings[members[0]]
			if v := CheckEligibility(l, now, s.opts.Window, mr.rating, mr.found); !v.OK {
				continue
			}
		}
		plan, res := s.joinGroupUnsafe(l, members, ratings, now)
		if res.Status == StatusOK {
			return plan, res, true
		}
		if res.Status == StatusAlreadyInLobby || res.Status == StatusAlreadyMember {
			return joinPlan{}, res, true
		}
	}
	return joinPlan{}, Result{Status: StatusNoMatch, Reason: "no open lobby accepts this join"}, false
}
