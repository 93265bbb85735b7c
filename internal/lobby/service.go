// internal/lobby/service.go
package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queueup-gg/queueup/internal/models"
)

// Options bundles the tuning the transition service runs with.
type Options struct {
	Window WindowConfig

	// AutojoinOriginChannel, when non-empty, gates autojoin to requests
	// originating from this channel and restricts the candidate scan to
	// lobbies created there.
	AutojoinOriginChannel string

	InactivityTimeout time.Duration
	SweepInterval     time.Duration
}

// Service owns every lobby state transition: create, join, leave,
// open-last-seat, autojoin, expiry. All of them follow the same two-phase
// shape: phase 1 mutates under the store lock and returns a plan, phase 2
// runs the slow side effects (rating lookups happen even earlier, before
// the lock) and reconciles under the lock afterward, re-validating liveness
// by id lookup rather than trusting a stale pointer.
type Service struct {
	store *Store
	opts  Options

	ratings RatingSource
	rooms   Provisioner
	notify  Notifier
	persist Persister
	events  EventPublisher

	log *logrus.Logger

	// now is a seam for tests; production uses time.Now.
	now func() time.Time
}

// NewService wires the transition service. notify, persist, and events may
// be nil (degraded, side effects skipped); store, ratings, and rooms are
// required.
func NewService(store *Store, opts Options, ratings RatingSource, rooms Provisioner, notify Notifier, persist Persister, events EventPublisher, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		store:   store,
		opts:    opts,
		ratings: ratings,
		rooms:   rooms,
		notify:  notify,
		persist: persist,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

// Store exposes the underlying registry to read-only callers (list
// endpoints, tests).
func (s *Service) Store() *Store { return s.store }

// memberRating is a pre-lock rating snapshot; found mirrors the source's
// not-found answer so eligibility can fail closed.
type memberRating struct {
	rating Rating
	found  bool
}

// dedupeMembers drops repeated ids, preserving first-occurrence order. A
// member listed twice in a group request holds one seat at most; the
// one-seat-per-member checks run against the deduplicated list.
func dedupeMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// lookupRatings fetches ladder snapshots for a group before any lock is
// taken. Lookup errors degrade to not-found: eligibility fails closed, it
// never guesses.
func (s *Service) lookupRatings(ctx context.Context, communityID string, members []string) map[string]memberRating {
	out := make(map[string]memberRating, len(members))
	for _, m := range members {
		r, found, err := s.ratings.GetRating(ctx, communityID, m)
		if err != nil {
			s.log.Warnf("rating lookup for %s failed: %v", m, err)
			found = false
		}
		out[m] = memberRating{rating: r, found: found}
	}
	return out
}

// CreateRequest starts a new lobby.
type CreateRequest struct {
	CommunityID     string
	OriginChannelID string
	HostID          string
	Capacity        int
	RatingMode      bool
	// InvitedIDs are seated along with the host when the whole group fits
	// and (for rated lobbies) every invited member passes the floor check.
	// Otherwise the host is seated alone and the verdicts are surfaced.
	InvitedIDs []string
}

// Create builds a new lobby with the host in the first seat.
func (s *Service) Create(ctx context.Context, req CreateRequest) Result {
	if req.Capacity < 2 {
		return Result{Status: StatusNotApplicable, Reason: "capacity must be at least 2"}
	}

	// The host may appear in their own invite list, and invites may repeat;
	// prepending the host and deduplicating strips both.
	invited := dedupeMembers(append([]string{req.HostID}, req.InvitedIDs...))[1:]

	// Slow lookups first, strictly before the lock.
	var hostRating memberRating
	var windowBase, windowStep float64
	var invitedRatings map[string]memberRating
	if req.RatingMode {
		hostRating = s.lookupRatings(ctx, req.CommunityID, []string{req.HostID})[req.HostID]
		if !hostRating.found {
			return ratingFailResult(map[string]Eligibility{req.HostID: {Reason: ReasonNoRating}})
		}
		if hostRating.rating.Games < s.opts.Window.MinGames {
			return ratingFailResult(map[string]Eligibility{req.HostID: {Reason: ReasonInsufficientGames}})
		}
		league, err := s.ratings.LeagueRatings(ctx, req.CommunityID, s.opts.Window.MinGames)
		if err != nil {
			// Window sizing never blocks creation; fall back to defaults.
			s.log.Warnf("league ratings unavailable for %s, using default window: %v", req.CommunityID, err)
			league = nil
		}
		windowBase, windowStep = SizeWindow(hostRating.rating.Value, league, s.opts.Window)
		if len(invited) > 0 {
			invitedRatings = s.lookupRatings(ctx, req.CommunityID, invited)
		}
	}

	now := s.now()

	s.store.Mu.Lock()
	if s.store.FindLobbyForMemberUnsafe(req.CommunityID, req.HostID, nil) != nil {
		s.store.Mu.Unlock()
		return failResult(StatusAlreadyInLobby)
	}

	l := &Lobby{
		ID:              s.store.AllocateID(),
		CommunityID:     req.CommunityID,
		OriginChannelID: req.OriginChannelID,
		HostID:          req.HostID,
		Capacity:        req.Capacity,
		PlayerIDs:       []string{req.HostID},
		RatingMode:      req.RatingMode,
		RatingByPlayer:  make(map[string]float64),
		CreatedAt:       now,
		LastActivityAt:  now,
		WindowBase:      windowBase,
		WindowStep:      windowStep,
	}
	if req.RatingMode {
		l.HostRating = hostRating.rating.Value
		l.RatingByPlayer[req.HostID] = hostRating.rating.Value
	}

	// Seat invited friends atomically: all of them or none of them.
	verdicts := s.seatInvitedUnsafe(l, invited, invitedRatings, now)

	if l.SeatsLeft() == 1 && l.AlmostFullAt.IsZero() {
		l.AlmostFullAt = now
	}

	plan := joinPlan{lobby: l}
	if l.IsFull() && l.RoomLink == "" && !l.ProvisioningInFlight {
		l.ProvisioningInFlight = true
		plan.provision = true
	}

	s.store.AddUnsafe(l)
	plan.snap = l.SnapshotUnsafe(now, s.opts.Window)
	s.store.Mu.Unlock()

	s.log.Infof("lobby %d created in %s by %s (capacity %d, rated %v)", l.ID, l.CommunityID, l.HostID, l.Capacity, l.RatingMode)
	s.publish(ctx, "lobby_created", map[string]interface{}{
		"community_id": l.CommunityID,
		"lobby_id":     l.ID,
		"host_id":      l.HostID,
	})

	res := s.executeJoinPlan(ctx, plan)
	if len(verdicts) > 0 {
		res.Ratings = verdicts
	}
	return res
}

// seatInvitedUnsafe seats the invited group if every member is free and
// (for rated lobbies) eligible, and the group fits. On any failure nobody
// is seated and the per-member verdicts are returned. Assumes Mu is held.
func (s *Service) seatInvitedUnsafe(l *Lobby, invited []string, ratings map[string]memberRating, now time.Time) map[string]Eligibility {
	if len(invited) == 0 {
		return nil
	}
	verdicts := make(map[string]Eligibility, len(invited))
	allOK := len(invited) <= l.SeatsLeft()
	for _, m := range invited {
		if l.HasPlayer(m) || s.store.FindLobbyForMemberUnsafe(l.CommunityID, m, nil) != nil {
			verdicts[m] = Eligibility{Reason: ReasonUnavailable}
			allOK = false
			continue
		}
		if l.RatingMode {
			mr := ratings[m]
			v := CheckEligibility(l, now, s.opts.Window, mr.rating, mr.found)
			verdicts[m] = v
			if !v.OK {
				allOK = false
			}
		} else {
			verdicts[m] = Eligibility{OK: true}
		}
	}
	if !allOK {
		return verdicts
	}
	for _, m := range invited {
		l.PlayerIDs = append(l.PlayerIDs, m)
		if l.RatingMode {
			if mr := ratings[m]; mr.found {
				l.RatingByPlayer[m] = mr.rating.Value
			}
		}
	}
	return nil
}

// JoinRequest adds a member (and optionally invited friends, as one atomic
// group) to a specific lobby.
type JoinRequest struct {
	CommunityID string
	LobbyID     int64
	MemberID    string
	InvitedIDs  []string
}

// Join is the targeted join operation: two-phase, with rating snapshots
// fetched strictly before the lock.
func (s *Service) Join(ctx context.Context, req JoinRequest) Result {
	members := dedupeMembers(append([]string{req.MemberID}, req.InvitedIDs...))

	// Peek at the target to learn whether rating lookups are needed.
	s.store.Mu.Lock()
	target, ok := s.store.GetUnsafe(req.CommunityID, req.LobbyID)
	rated := ok && target.RatingMode
	s.store.Mu.Unlock()
	if !ok {
		return failResult(StatusLobbyNotActive)
	}

	var ratings map[string]memberRating
	if rated {
		ratings = s.lookupRatings(ctx, req.CommunityID, members)
	}

	now := s.now()

	s.store.Mu.Lock()
	// Re-validate: the lobby must still be the same stored record. A
	// replaced entry means our rating peek ran against a different lobby.
	cur, ok := s.store.GetUnsafe(req.CommunityID, req.LobbyID)
	if !ok || cur != target {
		s.store.Mu.Unlock()
		return failResult(StatusLobbyNotActive)
	}
	if cur.RatingMode && ratings == nil {
		// The lobby flipped rated between the peek and now; fail closed
		// rather than admit without a snapshot.
		s.store.Mu.Unlock()
		return failResult(StatusLobbyNotActive)
	}
	plan, res := s.joinGroupUnsafe(cur, members, ratings, now)
	s.store.Mu.Unlock()

	if res.Status != StatusOK {
		return res
	}
	return s.executeJoinPlan(ctx, plan)
}

// joinPlan is the phase-1 output: what phase 2 must do once the lock is
// released.
type joinPlan struct {
	lobby *Lobby
	snap  models.LobbySnapshot
	// provision is set when this call won responsibility for room creation
	// by flipping the in-flight flag inside the lock.
	provision bool
	// announce distinguishes a join from a create for event purposes.
	announce bool
}

// joinGroupUnsafe is the single atomic join primitive shared by Join,
// Autojoin, and Create. It validates and seats the whole group or nothing.
// Assumes Mu is held; never suspends.
func (s *Service) joinGroupUnsafe(l *Lobby, members []string, ratings map[string]memberRating, now time.Time) (joinPlan, Result) {
	if !s.store.IsActiveUnsafe(l) {
		return joinPlan{}, failResult(StatusLobbyNotActive)
	}
	if l.IsFull() {
		return joinPlan{}, failResult(StatusLobbyFull)
	}
	for _, m := range members {
		if l.HasPlayer(m) {
			return joinPlan{}, failResult(StatusAlreadyMember)
		}
		if s.store.FindLobbyForMemberUnsafe(l.CommunityID, m, nil) != nil {
			return joinPlan{}, failResult(StatusAlreadyInLobby)
		}
	}
	if l.SeatsLeft() < len(members) {
		return joinPlan{}, failResult(StatusLobbyFull)
	}

	if l.RatingMode {
		verdicts := make(map[string]Eligibility, len(members))
		anyFail := false
		for _, m := range members {
			mr := ratings[m]
			v := CheckEligibility(l, now, s.opts.Window, mr.rating, mr.found)
			verdicts[m] = v
			if !v.OK {
				anyFail = true
			}
		}
		if anyFail {
			return joinPlan{}, ratingFailResult(verdicts)
		}
	}

	for _, m := range members {
		l.PlayerIDs = append(l.PlayerIDs, m)
		if l.RatingMode {
			if mr := ratings[m]; mr.found {
				l.RatingByPlayer[m] = mr.rating.Value
			}
		}
	}
	l.LastActivityAt = now
	if l.SeatsLeft() == 1 && l.AlmostFullAt.IsZero() {
		l.AlmostFullAt = now
	}

	plan := joinPlan{lobby: l, announce: true}
	if l.IsFull() && l.RoomLink == "" && !l.ProvisioningInFlight {
		// Only one of two racing joins can observe "now full" with the flag
		// down; the flip inside the lock is the dedup point.
		l.ProvisioningInFlight = true
		plan.provision = true
	}
	plan.snap = l.SnapshotUnsafe(now, s.opts.Window)
	return plan, okResult(plan.snap)
}

// executeJoinPlan is phase 2: provisioning, persistence, and notification,
// all outside the lock, with liveness re-validated before any state is
// touched again.
func (s *Service) executeJoinPlan(ctx context.Context, plan joinPlan) Result {
	l := plan.lobby

	if !plan.provision {
		s.persistSave(ctx, plan.snap)
		if plan.announce {
			s.publish(ctx, "lobby_joined", map[string]interface{}{
				"community_id": plan.snap.CommunityID,
				"lobby_id":     plan.snap.LobbyID,
				"players":      plan.snap.PlayerIDs,
			})
		}
		s.notifyChannel(ctx, plan.snap.CommunityID, plan.snap.OriginChannelID, statusPayload(plan.snap))
		return okResult(plan.snap)
	}

	name := fmt.Sprintf("%s-lobby-%d", l.CommunityID, l.ID)
	format := fmt.Sprintf("%dp", plan.snap.Capacity)
	link, err := s.rooms.CreateRoom(ctx, name, format, !plan.snap.RatingMode)

	if err != nil {
		s.log.Warnf("room provisioning failed for lobby %d: %v", l.ID, err)
		s.store.Mu.Lock()
		if s.store.IsActiveUnsafe(l) {
			// Leave the lobby full-but-unprovisioned; a later join or retry
			// may attempt provisioning again.
			l.ProvisioningInFlight = false
		}
		failSnap := l.SnapshotUnsafe(s.now(), s.opts.Window)
		s.store.Mu.Unlock()

		s.persistSave(ctx, failSnap)
		s.notifyChannel(ctx, failSnap.CommunityID, failSnap.OriginChannelID, map[string]interface{}{
			"type":     "provision_failed",
			"lobby_id": failSnap.LobbyID,
			"message":  StatusProvisionFailed.String(),
		})
		return Result{Status: StatusProvisionFailed, Reason: StatusProvisionFailed.String(), Lobby: &failSnap}
	}

	s.store.Mu.Lock()
	if !s.store.IsActiveUnsafe(l) || !l.ProvisioningInFlight || !l.IsFull() {
		// Expired, force-removed, or a leave revoked our responsibility
		// while we were suspended. The room is orphaned; nothing ships.
		if s.store.IsActiveUnsafe(l) {
			l.ProvisioningInFlight = false
		}
		s.store.Mu.Unlock()
		s.log.Warnf("lobby %d no longer shippable after provisioning, room %s orphaned", l.ID, link)
		return failResult(StatusLobbyNotActive)
	}
	l.RoomLink = link
	l.ProvisioningInFlight = false
	finalSnap := l.SnapshotUnsafe(s.now(), s.opts.Window)
	s.store.RemoveUnsafe(l.CommunityID, l.ID)
	s.store.Mu.Unlock()

	s.log.Infof("lobby %d shipped with room %s", finalSnap.LobbyID, link)
	s.persistDelete(ctx, finalSnap.CommunityID, finalSnap.LobbyID)
	s.publish(ctx, "lobby_shipped", map[string]interface{}{
		"community_id": finalSnap.CommunityID,
		"lobby_id":     finalSnap.LobbyID,
		"room_link":    link,
		"players":      finalSnap.PlayerIDs,
	})
	shipped := map[string]interface{}{
		"type":      "lobby_shipped",
		"lobby_id":  finalSnap.LobbyID,
		"room_link": link,
	}
	for _, m := range finalSnap.PlayerIDs {
		s.notifyMember(ctx, finalSnap.CommunityID, m, shipped)
	}
	s.notifyChannel(ctx, finalSnap.CommunityID, finalSnap.OriginChannelID, shipped)

	res := okResult(finalSnap)
	res.RoomLink = link
	return res
}

// Leave removes the member from their lobby in the community.
func (s *Service) Leave(ctx context.Context, communityID, memberID string) Result {
	now := s.now()

	s.store.Mu.Lock()
	l := s.store.FindLobbyForMemberUnsafe(communityID, memberID, nil)
	if l == nil {
		s.store.Mu.Unlock()
		return failResult(StatusNotInLobby)
	}

	for i, id := range l.PlayerIDs {
		if id == memberID {
			l.PlayerIDs = append(l.PlayerIDs[:i], l.PlayerIDs[i+1:]...)
			break
		}
	}
	delete(l.RatingByPlayer, memberID)
	l.LastActivityAt = now

	if l.ProvisioningInFlight && !l.IsFull() {
		// A room must not be created for a lobby that is no longer full;
		// revoking the flag makes the in-flight call's reconciliation a
		// no-op.
		l.ProvisioningInFlight = false
	}

	if l.SeatsLeft() == 1 {
		if l.AlmostFullAt.IsZero() {
			l.AlmostFullAt = now
		}
	} else {
		l.AlmostFullAt = time.Time{}
	}

	closed := len(l.PlayerIDs) == 0
	if closed {
		s.store.RemoveUnsafe(communityID, l.ID)
	}
	snap := l.SnapshotUnsafe(now, s.opts.Window)
	s.store.Mu.Unlock()

	if closed {
		s.log.Infof("lobby %d in %s emptied and closed", snap.LobbyID, communityID)
		s.persistDelete(ctx, communityID, snap.LobbyID)
		s.publish(ctx, "lobby_closed", map[string]interface{}{
			"community_id": communityID,
			"lobby_id":     snap.LobbyID,
		})
		s.notifyChannel(ctx, communityID, snap.OriginChannelID, map[string]interface{}{
			"type":     "lobby_closed",
			"lobby_id": snap.LobbyID,
		})
	} else {
		s.persistSave(ctx, snap)
		s.publish(ctx, "lobby_left", map[string]interface{}{
			"community_id": communityID,
			"lobby_id":     snap.LobbyID,
			"member_id":    memberID,
		})
		s.notifyChannel(ctx, communityID, snap.OriginChannelID, statusPayload(snap))
	}
	return okResult(snap)
}

// OpenLastSeat is the host's early relaxation of the rating floor for the
// final seat. Host-only, rated-only, and only at exactly one seat left.
func (s *Service) OpenLastSeat(ctx context.Context, communityID string, lobbyID int64, memberID string) Result {
	now := s.now()

	s.store.Mu.Lock()
	l, ok := s.store.GetUnsafe(communityID, lobbyID)
	if !ok {
		s.store.Mu.Unlock()
		return failResult(StatusLobbyNotActive)
	}
	if l.HostID != memberID {
		s.store.Mu.Unlock()
		return failResult(StatusNotHost)
	}
	if !l.RatingMode || l.SeatsLeft() != 1 || l.LastSeatRelaxed {
		s.store.Mu.Unlock()
		return failResult(StatusNotApplicable)
	}
	l.LastSeatRelaxed = true
	if l.AlmostFullAt.IsZero() {
		l.AlmostFullAt = now
	}
	l.LastActivityAt = now
	snap := l.SnapshotUnsafe(now, s.opts.Window)
	s.store.Mu.Unlock()

	s.persistSave(ctx, snap)
	s.publish(ctx, "last_seat_opened", map[string]interface{}{
		"community_id": communityID,
		"lobby_id":     lobbyID,
	})
	s.notifyChannel(ctx, communityID, snap.OriginChannelID, statusPayload(snap))
	return okResult(snap)
}

// ForceRemove defensively deletes a lobby regardless of state; used when an
// invariant violation is detected or by the admin surface. Returns false if
// the lobby was already gone.
func (s *Service) ForceRemove(ctx context.Context, communityID string, lobbyID int64, reason string) bool {
	s.store.Mu.Lock()
	l, ok := s.store.GetUnsafe(communityID, lobbyID)
	if !ok {
		s.store.Mu.Unlock()
		return false
	}
	s.store.RemoveUnsafe(communityID, lobbyID)
	snap := l.SnapshotUnsafe(s.now(), s.opts.Window)
	s.store.Mu.Unlock()

	s.log.Errorf("lobby %d in %s force-removed: %s", lobbyID, communityID, reason)
	s.persistDelete(ctx, communityID, lobbyID)
	s.publish(ctx, "lobby_removed", map[string]interface{}{
		"community_id": communityID,
		"lobby_id":     lobbyID,
		"reason":       reason,
	})
	s.notifyChannel(ctx, communityID, snap.OriginChannelID, map[string]interface{}{
		"type":     "lobby_closed",
		"lobby_id": lobbyID,
	})
	return true
}

// Snapshots returns the renderer views of every lobby in a community.
func (s *Service) Snapshots(communityID string) []models.LobbySnapshot {
	now := s.now()
	s.store.Mu.Lock()
	defer s.store.Mu.Unlock()
	view := s.store.ViewUnsafe(communityID)
	out := make([]models.LobbySnapshot, 0, len(view))
	for _, l := range view {
		out = append(out, l.SnapshotUnsafe(now, s.opts.Window))
	}
	return out
}

func statusPayload(snap models.LobbySnapshot) map[string]interface{} {
	return map[string]interface{}{
		"type":  "lobby_status",
		"lobby": snap,
	}
}

// Side-effect helpers. Each is nil-guarded and swallows failures after
// logging: a persistence or delivery failure never blocks an in-memory
// transition.

func (s *Service) persistSave(ctx context.Context, snap models.LobbySnapshot) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(ctx, snap); err != nil {
		s.log.Warnf("persist save for lobby %d failed: %v", snap.LobbyID, err)
	}
}

func (s *Service) persistDelete(ctx context.Context, communityID string, lobbyID int64) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Delete(ctx, communityID, lobbyID); err != nil {
		s.log.Warnf("persist delete for lobby %d failed: %v", lobbyID, err)
	}
}

func (s *Service) publish(ctx context.Context, event string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.log.Warnf("event publish %q failed: %v", event, err)
	}
}

func (s *Service) notifyMember(ctx context.Context, communityID, memberID string, payload map[string]interface{}) {
	if s.notify == nil {
		return
	}
	s.notify.NotifyMember(ctx, communityID, memberID, payload)
}

func (s *Service) notifyChannel(ctx context.Context, communityID, channelID string, payload map[string]interface{}) {
	if s.notify == nil {
		return
	}
	s.notify.NotifyChannel(ctx, communityID, channelID, payload)
}
