// internal/handlers/lobby_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queueup-gg/queueup/internal/auth"
	"github.com/queueup-gg/queueup/internal/lobby"
)

type stubRatings struct{}

func (stubRatings) GetRating(ctx context.Context, communityID, memberID string) (lobby.Rating, bool, error) {
	return lobby.Rating{}, false, nil
}

func (stubRatings) LeagueRatings(ctx context.Context, communityID string, minGames int) ([]float64, error) {
	return nil, nil
}

type stubRooms struct{}

func (stubRooms) CreateRoom(ctx context.Context, name, format string, public bool) (string, error) {
	return "https://rooms.example/" + name, nil
}

func newTestServer() *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := NewLobbyHub(logger)
	svc := lobby.NewService(
		lobby.NewStore(),
		lobby.Options{Window: lobby.WindowConfig{
			BaseRange:         100,
			RangeStep:         50,
			ExpandInterval:    5 * time.Minute,
			MaxSteps:          4,
			LastSeatGrace:     10 * time.Minute,
			AbsoluteMinRating: 1200,
			MinGames:          10,
			Granularity:       25,
			PercentileCut:     0.10,
			SpreadDivisor:     4,
		}},
		stubRatings{}, stubRooms{}, hub, nil, nil, logger,
	)
	return NewServer(svc, hub, "", logger)
}

// TestLobbyCreate checks that /lobby/create builds a lobby in memory for the
// session's member.
func TestLobbyCreate(t *testing.T) {
	auth.Init() // ephemeral keys, no gateway needed
	srv := newTestServer()

	token, _ := auth.CreateToken("ann", "guild-1")
	body := `{"origin_channel_id":"chan-a","capacity":3}`
	req := httptest.NewRequest("POST", "/lobby/create", bytes.NewBufferString(body))
	req.Header.Set("Cookie", "auth_token="+token)
	w := httptest.NewRecorder()

	CreateLobbyHandler(srv).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var res resultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("expected status ok, got %q (%s)", res.Status, res.Reason)
	}
	if res.Lobby == nil {
		t.Fatalf("response has no lobby snapshot")
	}
}

// TestLobbyJoinShips drives a 2-seat lobby to full through the HTTP surface
// and expects the room link back.
func TestLobbyJoinShips(t *testing.T) {
	auth.Init()
	srv := newTestServer()

	hostToken, _ := auth.CreateToken("ann", "guild-1")
	req := httptest.NewRequest("POST", "/lobby/create", bytes.NewBufferString(`{"capacity":2}`))
	req.Header.Set("Cookie", "auth_token="+hostToken)
	w := httptest.NewRecorder()
	CreateLobbyHandler(srv).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Lobby struct {
			LobbyID int64 `json:"lobby_id"`
		} `json:"lobby"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}

	joinToken, _ := auth.CreateToken("bob", "guild-1")
	joinBody, _ := json.Marshal(map[string]interface{}{"lobby_id": created.Lobby.LobbyID})
	req = httptest.NewRequest("POST", "/lobby/join", bytes.NewBuffer(joinBody))
	req.Header.Set("Cookie", "auth_token="+joinToken)
	w = httptest.NewRecorder()
	JoinLobbyHandler(srv).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("join failed: %d %s", w.Code, w.Body.String())
	}
	var res resultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode join response: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("expected status ok, got %q (%s)", res.Status, res.Reason)
	}
	if res.RoomLink == "" {
		t.Fatalf("full lobby shipped without a room link")
	}
}

func TestAutojoinReportsNoMatch(t *testing.T) {
	auth.Init()
	srv := newTestServer()

	token, _ := auth.CreateToken("cat", "guild-1")
	req := httptest.NewRequest("POST", "/lobby/autojoin", bytes.NewBufferString(`{"channel_id":"chan-a"}`))
	req.Header.Set("Cookie", "auth_token="+token)
	w := httptest.NewRecorder()
	AutojoinHandler(srv).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for no-match, got %d: %s", w.Code, w.Body.String())
	}
	var res resultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Status != "no_match" {
		t.Fatalf("expected no_match, got %q", res.Status)
	}
	if res.Matched == nil || *res.Matched {
		t.Fatalf("expected matched=false, got %v", res.Matched)
	}
}

func TestSessionRequired(t *testing.T) {
	auth.Init()
	srv := newTestServer()

	req := httptest.NewRequest("POST", "/lobby/create", bytes.NewBufferString(`{"capacity":3}`))
	w := httptest.NewRecorder()
	CreateLobbyHandler(srv).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a cookie, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/lobby/create", bytes.NewBufferString(`{"capacity":3}`))
	req.Header.Set("Cookie", "auth_token=garbage")
	w = httptest.NewRecorder()
	CreateLobbyHandler(srv).ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with a bad token, got %d", w.Code)
	}
}

func TestCreateSessionSetsCookie(t *testing.T) {
	auth.Init()
	srv := newTestServer()

	req := httptest.NewRequest("POST", "/session/create", bytes.NewBufferString(`{"member_id":"ann","community_id":"guild-1"}`))
	w := httptest.NewRecorder()
	CreateSessionHandler(srv).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth_token" {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatalf("no auth_token cookie set")
	}
	memberID, communityID, err := auth.AuthenticateToken(token)
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if memberID != "ann" || communityID != "guild-1" {
		t.Fatalf("token claims mismatch: %s / %s", memberID, communityID)
	}
}

func TestAdminRemoveDisabledWithoutHash(t *testing.T) {
	auth.Init()
	srv := newTestServer()

	req := httptest.NewRequest("POST", "/admin/lobby/remove", bytes.NewBufferString(`{"community_id":"guild-1","lobby_id":1}`))
	w := httptest.NewRecorder()
	AdminRemoveLobbyHandler(srv).ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no admin key hash is configured, got %d", w.Code)
	}
}
