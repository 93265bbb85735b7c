// internal/lobby/lobby.go
package lobby

import (
	"time"

	"github.com/queueup-gg/queueup/internal/models"
)

// Lobby is one in-progress matchmaking session: the players collected so
// far, the fixed capacity, and the rating-window bookkeeping. It has no
// behavior beyond small derived queries; every mutation happens inside the
// store's lock in the transition service.
type Lobby struct {
	ID              int64
	CommunityID     string
	OriginChannelID string
	HostID          string

	Capacity  int
	PlayerIDs []string // host is always the first element

	RatingMode bool
	// HostRating is the host's rating snapshot at creation. Only meaningful
	// when RatingMode is set.
	HostRating float64
	// RatingByPlayer holds rating snapshots recorded as rated players join.
	// Display data only; eligibility is never re-checked for members already
	// seated.
	RatingByPlayer map[string]float64

	CreatedAt time.Time
	// AlmostFullAt is stamped the instant seats-left first reaches exactly 1
	// and cleared if the gap grows back. Zero means unset.
	AlmostFullAt time.Time
	// LastSeatRelaxed is the host's explicit early relaxation of the floor.
	LastSeatRelaxed bool

	// RoomLink is non-empty only once provisioning has succeeded for a full
	// lobby.
	RoomLink string
	// ProvisioningInFlight is true only while a provisioning call is
	// outstanding. Flipped true only by the join that fills the lobby,
	// flipped false only by post-provisioning reconciliation or by a leave
	// that drops the lobby below full. All transitions happen under the
	// store lock.
	ProvisioningInFlight bool

	// WindowBase and WindowStep are per-lobby overrides computed once at
	// creation from league statistics. Zero means "use the configured
	// defaults".
	WindowBase float64
	WindowStep float64

	// LastActivityAt feeds the inactivity watcher; refreshed by every
	// join/leave/open-last-seat transition.
	LastActivityAt time.Time
}

// SeatsLeft returns the remaining open seats.
func (l *Lobby) SeatsLeft() int {
	return l.Capacity - len(l.PlayerIDs)
}

// IsFull reports whether every seat is taken.
func (l *Lobby) IsFull() bool {
	return len(l.PlayerIDs) >= l.Capacity
}

// HasPlayer reports whether memberID currently holds a seat.
func (l *Lobby) HasPlayer(memberID string) bool {
	for _, id := range l.PlayerIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// SnapshotUnsafe builds the renderer/persistence view of the lobby.
// Assumes the store lock is held.
func (l *Lobby) SnapshotUnsafe(now time.Time, cfg WindowConfig) models.LobbySnapshot {
	players := make([]string, len(l.PlayerIDs))
	copy(players, l.PlayerIDs)

	var ratings map[string]float64
	if len(l.RatingByPlayer) > 0 {
		ratings = make(map[string]float64, len(l.RatingByPlayer))
		for id, r := range l.RatingByPlayer {
			ratings[id] = r
		}
	}

	snap := models.LobbySnapshot{
		LobbyID:         l.ID,
		CommunityID:     l.CommunityID,
		OriginChannelID: l.OriginChannelID,
		HostID:          l.HostID,
		Capacity:        l.Capacity,
		PlayerIDs:       players,
		SeatsLeft:       l.SeatsLeft(),
		RatingMode:      l.RatingMode,
		RatingByPlayer:  ratings,
		RoomLink:        l.RoomLink,
		CreatedAt:       l.CreatedAt,
	}
	if l.RatingMode {
		snap.HostRating = l.HostRating
		if floor, ok := EffectiveFloor(l, now, cfg); ok {
			snap.RatingFloor = floor
			snap.HasRatingFloor = true
		}
		snap.LastSeatOpen = LastSeatOpen(l, now, cfg)
	}
	return snap
}
