// internal/lobby/watcher.go
package lobby

import (
	"context"
	"time"
)

// expiredRef is a candidate collected during the scan pass; the removal
// pass re-validates it under the lock before deleting, since a join can
// refresh the lobby between the two.
type expiredRef struct {
	communityID string
	lobbyID     int64
	lobby       *Lobby
}

// ExpireLoop sweeps idle lobbies until ctx is cancelled. Run it in its own
// goroutine from process startup.
func (s *Service) ExpireLoop(ctx context.Context) {
	interval := s.opts.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}

// SweepExpired removes every lobby with no join/leave activity inside the
// configured timeout. One pass collects candidates under the lock, then
// each removal re-acquires the lock and re-validates identity and idleness;
// the notification runs outside the lock. Returns how many were expired.
func (s *Service) SweepExpired(ctx context.Context) int {
	if s.opts.InactivityTimeout <= 0 {
		return 0
	}
	now := s.now()
	cutoff := now.Add(-s.opts.InactivityTimeout)

	s.store.Mu.Lock()
	var candidates []expiredRef
	for communityID := range s.store.communities {
		for id, l := range s.store.communities[communityID] {
			if l.LastActivityAt.Before(cutoff) {
				candidates = append(candidates, expiredRef{communityID: communityID, lobbyID: id, lobby: l})
			}
		}
	}
	s.store.Mu.Unlock()

	expired := 0
	for _, ref := range candidates {
		s.store.Mu.Lock()
		if !s.store.IsActiveUnsafe(ref.lobby) || !ref.lobby.LastActivityAt.Before(cutoff) {
			// Replaced or refreshed while we weren't looking; skip.
			s.store.Mu.Unlock()
			continue
		}
		s.store.RemoveUnsafe(ref.communityID, ref.lobbyID)
		snap := ref.lobby.SnapshotUnsafe(now, s.opts.Window)
		s.store.Mu.Unlock()

		expired++
		s.log.Infof("lobby %d in %s expired after inactivity", ref.lobbyID, ref.communityID)
		s.persistDelete(ctx, ref.communityID, ref.lobbyID)
		s.publish(ctx, "lobby_expired", map[string]interface{}{
			"community_id": ref.communityID,
			"lobby_id":     ref.lobbyID,
		})
		s.notifyChannel(ctx, ref.communityID, snap.OriginChannelID, map[string]interface{}{
			"type":     "lobby_expired",
			"lobby_id": ref.lobbyID,
		})
	}
	return expired
}
