// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/queueup-gg/queueup/internal/auth"
)

type createSessionRequest struct {
	MemberID    string `json:"member_id"`
	CommunityID string `json:"community_id"`
}

// CreateSessionHandler mints an auth_token cookie binding a member to a
// community. The platform gateway in front of this service is expected to
// have already verified the member's identity; this endpoint only issues
// the session the lobby API consumes.
func CreateSessionHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad session request payload", http.StatusBadRequest)
			return
		}
		if req.MemberID == "" || req.CommunityID == "" {
			http.Error(w, "member_id and community_id are required", http.StatusBadRequest)
			return
		}

		token, err := auth.CreateToken(req.MemberID, req.CommunityID)
		if err != nil {
			s.Log.Errorf("failed to create session token: %v", err)
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"member_id":    req.MemberID,
			"community_id": req.CommunityID,
		})
	}
}
