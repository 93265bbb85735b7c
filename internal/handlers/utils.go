// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/queueup-gg/queueup/internal/lobby"
)

// extractCookieToken extracts a named cookie value from the "Cookie"
// header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// resultResponse is the JSON wire shape for every transition outcome.
type resultResponse struct {
	Status  string            `json:"status"`
	Reason  string            `json:"reason,omitempty"`
	Lobby   interface{}       `json:"lobby,omitempty"`
	Ratings map[string]string `json:"ratings,omitempty"`

	RoomLink string `json:"room_link,omitempty"`
	Matched  *bool  `json:"matched,omitempty"`
}

// writeResult maps a typed core result onto an HTTP response.
func writeResult(w http.ResponseWriter, res lobby.Result) {
	writeResultMatched(w, res, nil)
}

func writeResultMatched(w http.ResponseWriter, res lobby.Result, matched *bool) {
	body := resultResponse{
		Status:   statusToken(res.Status),
		Reason:   res.Reason,
		RoomLink: res.RoomLink,
		Matched:  matched,
	}
	if res.Lobby != nil {
		body.Lobby = res.Lobby
	}
	if len(res.Ratings) > 0 {
		body.Ratings = make(map[string]string, len(res.Ratings))
		for member, v := range res.Ratings {
			if v.OK {
				body.Ratings[member] = "eligible"
			} else {
				body.Ratings[member] = v.Reason.String()
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusFor(res.Status))
	json.NewEncoder(w).Encode(body)
}

func statusToken(st lobby.Status) string {
	switch st {
	case lobby.StatusOK:
		return "ok"
	case lobby.StatusLobbyNotActive:
		return "lobby_not_active"
	case lobby.StatusAlreadyInLobby:
		return "already_in_lobby"
	case lobby.StatusAlreadyMember:
		return "already_member"
	case lobby.StatusLobbyFull:
		return "lobby_full"
	case lobby.StatusRatingIneligible:
		return "rating_ineligible"
	case lobby.StatusNotHost:
		return "not_host"
	case lobby.StatusNotApplicable:
		return "not_applicable"
	case lobby.StatusNotInLobby:
		return "not_in_lobby"
	case lobby.StatusProvisionFailed:
		return "provision_failed"
	case lobby.StatusNoMatch:
		return "no_match"
	}
	return "unknown"
}

func httpStatusFor(st lobby.Status) int {
	switch st {
	case lobby.StatusOK, lobby.StatusNoMatch, lobby.StatusProvisionFailed:
		// ProvisionFailed still committed the membership change; the body
		// carries the retry guidance.
		return http.StatusOK
	case lobby.StatusLobbyNotActive:
		return http.StatusNotFound
	case lobby.StatusRatingIneligible:
		return http.StatusForbidden
	default:
		return http.StatusConflict
	}
}
