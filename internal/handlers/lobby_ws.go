// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/queueup-gg/queueup/internal/auth"
	"github.com/queueup-gg/queueup/internal/middleware"
)

// streamConn is one member's live status stream.
type streamConn struct {
	memberID string
	out      chan map[string]interface{}
	cancel   context.CancelFunc
	// supersede closes the underlying socket with DuplicateStreamError when a
	// newer stream replaces this one. Optional.
	supersede func()
}

// writeNonBlocking queues a payload for delivery, dropping it if the client
// is too slow to drain its channel. Status payloads are full snapshots, so a
// dropped frame is superseded by the next one.
func (c *streamConn) writeNonBlocking(payload map[string]interface{}) bool {
	select {
	case c.out <- payload:
		return true
	default:
		return false
	}
}

// LobbyHub tracks open status streams per community and fans lobby updates
// out to them. It satisfies the matchmaking core's notifier port; delivery
// is best effort and never blocks a state transition.
type LobbyHub struct {
	mu          sync.Mutex
	communities map[string]map[string]*streamConn

	log *logrus.Logger
}

// NewLobbyHub creates an empty hub.
func NewLobbyHub(log *logrus.Logger) *LobbyHub {
	if log == nil {
		log = logrus.New()
	}
	return &LobbyHub{
		communities: make(map[string]map[string]*streamConn),
		log:         log,
	}
}

// register installs a member's stream, closing any previous one for the same
// member. Returns the connection to use in the pumps.
func (h *LobbyHub) register(communityID, memberID string, cancel context.CancelFunc, supersede func()) *streamConn {
	conn := &streamConn{
		memberID:  memberID,
		out:       make(chan map[string]interface{}, 16),
		cancel:    cancel,
		supersede: supersede,
	}

	h.mu.Lock()
	conns, ok := h.communities[communityID]
	if !ok {
		conns = make(map[string]*streamConn)
		h.communities[communityID] = conns
	}
	prev := conns[memberID]
	conns[memberID] = conn
	h.mu.Unlock()

	if prev != nil {
		if prev.supersede != nil {
			prev.supersede()
		}
		prev.cancel()
	}
	return conn
}

// unregister removes the stream if it is still the live one for its member.
func (h *LobbyHub) unregister(communityID string, conn *streamConn) {
	h.mu.Lock()
	if conns, ok := h.communities[communityID]; ok {
		if conns[conn.memberID] == conn {
			delete(conns, conn.memberID)
			if len(conns) == 0 {
				delete(h.communities, communityID)
			}
		}
	}
	h.mu.Unlock()
	conn.cancel()
}

// NotifyMember delivers a payload to one member's stream, if open.
func (h *LobbyHub) NotifyMember(ctx context.Context, communityID, memberID string, payload map[string]interface{}) {
	h.mu.Lock()
	var conn *streamConn
	if conns, ok := h.communities[communityID]; ok {
		conn = conns[memberID]
	}
	h.mu.Unlock()

	if conn == nil {
		return
	}
	if !conn.writeNonBlocking(payload) {
		h.log.Warnf("dropping payload for slow member %s in community %s", memberID, communityID)
	}
}

// NotifyChannel fans a payload out to every open stream in the community.
// Channel scoping is advisory; clients filter on the channel_id field.
func (h *LobbyHub) NotifyChannel(ctx context.Context, communityID, channelID string, payload map[string]interface{}) {
	if channelID != "" {
		// The caller may have queued this same map on member streams, where
		// the write pumps read it concurrently. Tag a copy, never the
		// original.
		tagged := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			tagged[k] = v
		}
		tagged["channel_id"] = channelID
		payload = tagged
	}

	h.mu.Lock()
	targets := make([]*streamConn, 0, len(h.communities[communityID]))
	for _, conn := range h.communities[communityID] {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if !conn.writeNonBlocking(payload) {
			h.log.Warnf("dropping payload for slow member %s in community %s", conn.memberID, communityID)
		}
	}
}

// LobbyWSHandler upgrades to a WebSocket and streams lobby status payloads
// to the authenticated member until the client disconnects.
func LobbyWSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
		if token == "" {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		memberID, communityID, err := auth.AuthenticateToken(token)
		if err != nil || communityID == "" {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby-status"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby-status" {
			c.Close(BadSubprotocolError, "client must speak the lobby-status subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := s.Hub.register(communityID, memberID, cancel, func() {
			c.Close(DuplicateStreamError, "replaced by a newer stream")
		})
		defer s.Hub.unregister(communityID, conn)

		middleware.LogWebSocketConnect(s.Log, remoteAddr, r.URL.Path)

		go statusWritePump(ctx, c, conn, s.Log)

		// The stream is push-only; the read pump exists to surface client
		// disconnects and to drain any pings the client sends.
		err = statusReadPump(ctx, c)
		middleware.LogWebSocketDisconnect(s.Log, remoteAddr, r.URL.Path, err)
	}
}

func statusReadPump(ctx context.Context, c *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, _, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		// Inbound frames carry no commands; all mutations go through HTTP.
	}
}

func statusWritePump(ctx context.Context, c *websocket.Conn, conn *streamConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	defer func() {
		_ = c.Close(websocket.StatusGoingAway, "write pump stopping")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-conn.out:
			if !ok {
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Warnf("failed to marshal status payload for member %s: %v", conn.memberID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for member %s: %v", conn.memberID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping member %s: %v, assuming disconnect", conn.memberID, err)
				return
			}
		}
	}
}
