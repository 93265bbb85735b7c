// internal/lobby/results.go
package lobby

import (
	"fmt"
	"time"

	"github.com/queueup-gg/queueup/internal/models"
)

// Status is the typed outcome of a transition request. Precondition
// failures are values, not errors: the steady-state path never uses error
// returns for control flow.
type Status int

const (
	StatusOK Status = iota
	// StatusLobbyNotActive: the target lobby was removed or replaced before
	// the request reached it.
	StatusLobbyNotActive
	// StatusAlreadyInLobby: the requester already holds a seat in another
	// active lobby in this community.
	StatusAlreadyInLobby
	// StatusAlreadyMember: the requester is already seated in this lobby.
	StatusAlreadyMember
	// StatusLobbyFull: no seats left for the requested group.
	StatusLobbyFull
	// StatusRatingIneligible: the rating-floor check failed; Result.Ratings
	// carries the per-member verdicts.
	StatusRatingIneligible
	// StatusNotHost: a host-only transition was requested by a non-host.
	StatusNotHost
	// StatusNotApplicable: the transition does not apply to the lobby's
	// current state (e.g. open-last-seat on a non-rated lobby or with more
	// than one seat left).
	StatusNotApplicable
	// StatusNotInLobby: a leave request from a member with no lobby.
	StatusNotInLobby
	// StatusProvisionFailed: the membership change committed but the room
	// could not be created; the lobby stays full-but-unprovisioned for a
	// retry.
	StatusProvisionFailed
	// StatusNoMatch: autojoin found no acceptable open lobby; the caller
	// decides whether to create a fresh one.
	StatusNoMatch
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLobbyNotActive:
		return "lobby no longer active"
	case StatusAlreadyInLobby:
		return "already in another lobby"
	case StatusAlreadyMember:
		return "already in this lobby"
	case StatusLobbyFull:
		return "lobby is full"
	case StatusRatingIneligible:
		return "rating requirement not met"
	case StatusNotHost:
		return "only the host can do that"
	case StatusNotApplicable:
		return "not applicable to this lobby"
	case StatusNotInLobby:
		return "not in a lobby"
	case StatusProvisionFailed:
		return "joined, but the room couldn't be created - try again"
	case StatusNoMatch:
		return "no matching lobby"
	}
	return "unknown"
}

// Result is what every transition returns to the thin command layer: a
// status, a human-readable reason, and on success the snapshot a renderer
// needs.
type Result struct {
	Status Status
	Reason string
	Lobby  *models.LobbySnapshot
	// Ratings holds per-member eligibility verdicts when Status is
	// StatusRatingIneligible (group joins surface every failing member).
	Ratings map[string]Eligibility
	// RoomLink is set when this request shipped the lobby.
	RoomLink string
}

func okResult(snap models.LobbySnapshot) Result {
	return Result{Status: StatusOK, Lobby: &snap}
}

func failResult(st Status) Result {
	return Result{Status: st, Reason: st.String()}
}

// ratingFailResult builds the actionable reason line for a floor rejection.
func ratingFailResult(verdicts map[string]Eligibility) Result {
	r := Result{Status: StatusRatingIneligible, Ratings: verdicts}
	for member, v := range verdicts {
		if v.OK {
			continue
		}
		reason := v.Reason.String()
		if v.Reason == ReasonBelowFloor {
			switch {
			case v.OpensIn > 0 && v.HostCanOpen:
				reason = fmt.Sprintf("rating below floor - opens in %d min, or the host can open the last seat now", minutesCeil(v.OpensIn))
			case v.OpensIn > 0:
				reason = fmt.Sprintf("rating below floor - opens in %d min", minutesCeil(v.OpensIn))
			case v.HostCanOpen:
				reason = "rating below floor - the host can open the last seat now"
			}
		}
		if r.Reason == "" {
			r.Reason = fmt.Sprintf("%s: %s", member, reason)
		} else {
			r.Reason += fmt.Sprintf("; %s: %s", member, reason)
		}
	}
	if r.Reason == "" {
		r.Reason = StatusRatingIneligible.String()
	}
	return r
}

func minutesCeil(d time.Duration) int {
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}
