// internal/lobby/autojoin_test.go
package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutojoinPrefersSameOrigin(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()

	older := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-b", HostID: "ann", Capacity: 4})
	require.Equal(t, StatusOK, older.Status)
	h.advance(time.Minute)
	newer := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "bob", Capacity: 4})
	require.Equal(t, StatusOK, newer.Status)

	// Same-origin beats age.
	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat"})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, newer.Lobby.LobbyID, res.Lobby.LobbyID)
}

func TestAutojoinOldestFirst(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()

	older := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 4})
	require.Equal(t, StatusOK, older.Status)
	h.advance(time.Minute)
	newer := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "bob", Capacity: 4})
	require.Equal(t, StatusOK, newer.Status)

	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat"})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, older.Lobby.LobbyID, res.Lobby.LobbyID, "long-waiting lobbies drain first")
}

func TestAutojoinSkipsIneligibleRated(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()
	h.ratings.ratings["ann"] = Rating{Value: 1800, Games: 50}
	h.ratings.ratings["cat"] = Rating{Value: 1400, Games: 50}

	rated := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 4, RatingMode: true})
	require.Equal(t, StatusOK, rated.Status)
	h.advance(time.Minute)
	open := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "bob", Capacity: 4})
	require.Equal(t, StatusOK, open.Status)

	// 1400 misses the 1700 floor; the solo scan keeps going and lands in the
	// non-rated lobby instead of failing.
	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat"})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, open.Lobby.LobbyID, res.Lobby.LobbyID)
}

func TestAutojoinFillsAndShips(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()

	created := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 4})
	require.Equal(t, StatusOK, created.Status)

	for _, m := range []string{"bob", "cat"} {
		res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: m})
		require.True(t, matched)
		require.Equal(t, StatusOK, res.Status)
		assert.Empty(t, res.RoomLink)
	}

	// The fourth seat ships the lobby.
	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "dot"})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.NotEmpty(t, res.RoomLink)
	assert.Equal(t, 1, h.rooms.callCount())

	_, ok := h.svc.Store().Get("guild-1", created.Lobby.LobbyID)
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"ann", "bob", "cat", "dot"}, h.notify.memberTargets())
}

func TestAutojoinNoMatch(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()

	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat"})
	assert.False(t, matched)
	assert.Equal(t, StatusNoMatch, res.Status)
}

func TestAutojoinRequesterAlreadySeated(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()

	created := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 4})
	require.Equal(t, StatusOK, created.Status)

	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "ann"})
	assert.True(t, matched, "terminal failure, the caller must not create a lobby")
	assert.Equal(t, StatusAlreadyInLobby, res.Status)
}

func TestAutojoinGroupPrefersNonRated(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()
	h.ratings.ratings["ann"] = Rating{Value: 1800, Games: 50}

	rated := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 6, RatingMode: true})
	require.Equal(t, StatusOK, rated.Status)
	h.advance(time.Minute)
	open := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "bob", Capacity: 6})
	require.Equal(t, StatusOK, open.Status)

	// Groups go to non-rated lobbies first even when a rated one is older.
	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat", InvitedIDs: []string{"dot", "eve"}})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, open.Lobby.LobbyID, res.Lobby.LobbyID)
	assert.Len(t, res.Lobby.PlayerIDs, 4)
}

func TestAutojoinDeduplicatesGroup(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()

	created := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 4})
	require.Equal(t, StatusOK, created.Status)

	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat", InvitedIDs: []string{"cat", "dot"}})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"ann", "cat", "dot"}, res.Lobby.PlayerIDs)
}

func TestAutojoinGroupRatedFallbackSurfacesFailures(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()
	h.ratings.ratings["ann"] = Rating{Value: 1800, Games: 50}
	h.ratings.ratings["cat"] = Rating{Value: 1750, Games: 50}
	// dot has no ladder entry at all.

	rated := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 6, RatingMode: true})
	require.Equal(t, StatusOK, rated.Status)

	// The only candidate is rated and one member fails its check: the group
	// stays together and the verdicts come back instead of a silent no-match.
	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat", InvitedIDs: []string{"dot"}})
	assert.True(t, matched)
	require.Equal(t, StatusRatingIneligible, res.Status)
	assert.True(t, res.Ratings["cat"].OK)
	assert.Equal(t, ReasonNoRating, res.Ratings["dot"].Reason)

	l, ok := h.svc.Store().Get("guild-1", rated.Lobby.LobbyID)
	require.True(t, ok)
	h.svc.Store().Mu.Lock()
	assert.Equal(t, []string{"ann"}, l.PlayerIDs, "no partial seating")
	h.svc.Store().Mu.Unlock()
}

func TestAutojoinGroupRatedFallbackAdmitsCleanGroup(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()
	h.ratings.ratings["ann"] = Rating{Value: 1800, Games: 50}
	h.ratings.ratings["cat"] = Rating{Value: 1750, Games: 50}
	h.ratings.ratings["dot"] = Rating{Value: 1720, Games: 30}

	rated := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 6, RatingMode: true})
	require.Equal(t, StatusOK, rated.Status)

	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "cat", InvitedIDs: []string{"dot"}})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.ElementsMatch(t, []string{"ann", "cat", "dot"}, res.Lobby.PlayerIDs)
}

func TestAutojoinRestrictedOriginGate(t *testing.T) {
	opts := Options{Window: testWindow(), AutojoinOriginChannel: "mm-channel"}
	h := newHarness(opts)
	ctx := context.Background()

	created := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "mm-channel", HostID: "ann", Capacity: 4})
	require.Equal(t, StatusOK, created.Status)
	elsewhere := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "general", HostID: "bob", Capacity: 4})
	require.Equal(t, StatusOK, elsewhere.Status)

	// Outside the configured channel the matcher does not even scan.
	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "general", MemberID: "cat"})
	assert.False(t, matched)
	assert.Equal(t, StatusNoMatch, res.Status)

	// Inside it, only lobbies born in that channel are candidates.
	res, matched = h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "mm-channel", MemberID: "cat"})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, created.Lobby.LobbyID, res.Lobby.LobbyID)
}

func TestAutojoinSkipsFullLobbies(t *testing.T) {
	h := defaultHarness()
	ctx := context.Background()
	h.rooms.block = make(chan struct{})
	h.rooms.started = make(chan struct{}, 1)

	full := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "ann", Capacity: 2})
	require.Equal(t, StatusOK, full.Status)
	done := make(chan Result, 1)
	go func() {
		done <- h.svc.Join(ctx, JoinRequest{CommunityID: "guild-1", LobbyID: full.Lobby.LobbyID, MemberID: "bob"})
	}()
	// The filling join is parked in provisioning, so the lobby sits full in
	// the registry while the matcher scans.
	<-h.rooms.started

	h.advance(time.Minute)
	open := h.svc.Create(ctx, CreateRequest{CommunityID: "guild-1", OriginChannelID: "chan-a", HostID: "cat", Capacity: 4})
	require.Equal(t, StatusOK, open.Status)

	res, matched := h.svc.Autojoin(ctx, AutojoinRequest{CommunityID: "guild-1", ChannelID: "chan-a", MemberID: "dot"})
	require.True(t, matched)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, open.Lobby.LobbyID, res.Lobby.LobbyID)

	close(h.rooms.block)
	require.Equal(t, StatusOK, (<-done).Status)
}
