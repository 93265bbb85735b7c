// internal/handlers/admin.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/queueup-gg/queueup/internal/auth"
)

type removeLobbyRequest struct {
	CommunityID string `json:"community_id"`
	LobbyID     int64  `json:"lobby_id"`
	Reason      string `json:"reason"`
}

// AdminRemoveLobbyHandler force-removes a lobby regardless of its state.
// Guarded by the X-Admin-Key header checked against the configured argon2id
// hash; the endpoint is disabled when no hash is configured.
func AdminRemoveLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKeyHash == "" {
			http.Error(w, "admin endpoint disabled", http.StatusNotFound)
			return
		}

		key := r.Header.Get("X-Admin-Key")
		match, err := auth.VerifyAPIKey(key, s.AdminKeyHash)
		if err != nil {
			s.Log.Errorf("admin key verification error: %v", err)
			http.Error(w, "admin key verification failed", http.StatusInternalServerError)
			return
		}
		if !match {
			http.Error(w, "invalid admin key", http.StatusForbidden)
			return
		}

		var req removeLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad removal request payload", http.StatusBadRequest)
			return
		}
		if req.Reason == "" {
			req.Reason = "removed by operator"
		}

		removed := s.Service.ForceRemove(r.Context(), req.CommunityID, req.LobbyID, req.Reason)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"removed": removed})
	}
}
