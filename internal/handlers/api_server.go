// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/queueup-gg/queueup/internal/auth"
	"github.com/queueup-gg/queueup/internal/lobby"
)

// Server is the thin command layer over the matchmaking core: it
// authenticates requests, decodes payloads, and translates typed results
// into HTTP responses. All lobby semantics live in internal/lobby.
type Server struct {
	Service *lobby.Service
	Hub     *LobbyHub
	Log     *logrus.Logger

	// AdminKeyHash guards the force-remove endpoint; empty disables it.
	AdminKeyHash string
}

// NewServer wires the command layer.
func NewServer(svc *lobby.Service, hub *LobbyHub, adminKeyHash string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{Service: svc, Hub: hub, Log: log, AdminKeyHash: adminKeyHash}
}

// requireSession authenticates the auth_token cookie and returns the member
// and community it was minted for. Writes the HTTP error itself on failure.
func requireSession(w http.ResponseWriter, r *http.Request) (memberID, communityID string, ok bool) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		http.Error(w, "missing auth_token", http.StatusUnauthorized)
		return "", "", false
	}
	memberID, communityID, err := auth.AuthenticateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return "", "", false
	}
	if communityID == "" {
		http.Error(w, "token has no community", http.StatusForbidden)
		return "", "", false
	}
	return memberID, communityID, true
}
