// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/queueup-gg/queueup/internal/lobby"
)

// CreateLobbyHandler starts a new lobby with the authenticated member as
// host.
func CreateLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, communityID, ok := requireSession(w, r)
		if !ok {
			return
		}

		var body struct {
			OriginChannelID string   `json:"origin_channel_id"`
			Capacity        int      `json:"capacity"`
			RatingMode      bool     `json:"rating_mode"`
			InvitedIDs      []string `json:"invited_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad lobby request payload", http.StatusBadRequest)
			return
		}

		res := s.Service.Create(r.Context(), lobby.CreateRequest{
			CommunityID:     communityID,
			OriginChannelID: body.OriginChannelID,
			HostID:          memberID,
			Capacity:        body.Capacity,
			RatingMode:      body.RatingMode,
			InvitedIDs:      body.InvitedIDs,
		})
		writeResult(w, res)
	}
}

// JoinLobbyHandler seats the member (plus any invited friends) in a
// specific lobby.
func JoinLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, communityID, ok := requireSession(w, r)
		if !ok {
			return
		}

		var body struct {
			LobbyID    int64    `json:"lobby_id"`
			InvitedIDs []string `json:"invited_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad join request payload", http.StatusBadRequest)
			return
		}

		res := s.Service.Join(r.Context(), lobby.JoinRequest{
			CommunityID: communityID,
			LobbyID:     body.LobbyID,
			MemberID:    memberID,
			InvitedIDs:  body.InvitedIDs,
		})
		writeResult(w, res)
	}
}

// LeaveLobbyHandler removes the member from whatever lobby they are in.
func LeaveLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, communityID, ok := requireSession(w, r)
		if !ok {
			return
		}
		res := s.Service.Leave(r.Context(), communityID, memberID)
		writeResult(w, res)
	}
}

// AutojoinHandler runs the matcher. The response carries matched=false when
// no open lobby fit and the client should offer lobby creation instead.
func AutojoinHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, communityID, ok := requireSession(w, r)
		if !ok {
			return
		}

		var body struct {
			ChannelID  string   `json:"channel_id"`
			InvitedIDs []string `json:"invited_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad autojoin request payload", http.StatusBadRequest)
			return
		}

		res, matched := s.Service.Autojoin(r.Context(), lobby.AutojoinRequest{
			CommunityID: communityID,
			ChannelID:   body.ChannelID,
			MemberID:    memberID,
			InvitedIDs:  body.InvitedIDs,
		})
		writeResultMatched(w, res, &matched)
	}
}

// OpenLastSeatHandler is the host's early relaxation of the last-seat
// floor.
func OpenLastSeatHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, communityID, ok := requireSession(w, r)
		if !ok {
			return
		}

		var body struct {
			LobbyID int64 `json:"lobby_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		res := s.Service.OpenLastSeat(r.Context(), communityID, body.LobbyID, memberID)
		writeResult(w, res)
	}
}

// ListLobbiesHandler returns renderer snapshots of every open lobby in the
// member's community.
func ListLobbiesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, communityID, ok := requireSession(w, r)
		if !ok {
			return
		}
		snaps := s.Service.Snapshots(communityID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snaps)
	}
}
