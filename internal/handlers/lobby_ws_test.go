// internal/handlers/lobby_ws_test.go
package handlers

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func testHub() *LobbyHub {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLobbyHub(logger)
}

func TestHubNotifyMember(t *testing.T) {
	h := testHub()
	conn := h.register("guild-1", "ann", func() {}, nil)

	h.NotifyMember(context.Background(), "guild-1", "ann", map[string]interface{}{"type": "lobby_status"})

	select {
	case payload := <-conn.out:
		if payload["type"] != "lobby_status" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	default:
		t.Fatalf("no payload queued for member")
	}

	// Unknown members and communities are silently skipped.
	h.NotifyMember(context.Background(), "guild-1", "ghost", map[string]interface{}{"type": "x"})
	h.NotifyMember(context.Background(), "guild-9", "ann", map[string]interface{}{"type": "x"})
}

func TestHubNotifyChannelFansOut(t *testing.T) {
	h := testHub()
	a := h.register("guild-1", "ann", func() {}, nil)
	b := h.register("guild-1", "bob", func() {}, nil)
	other := h.register("guild-2", "cat", func() {}, nil)

	h.NotifyChannel(context.Background(), "guild-1", "chan-a", map[string]interface{}{"type": "lobby_status"})

	for _, conn := range []*streamConn{a, b} {
		select {
		case payload := <-conn.out:
			if payload["channel_id"] != "chan-a" {
				t.Fatalf("payload missing channel_id: %v", payload)
			}
		default:
			t.Fatalf("member %s got no payload", conn.memberID)
		}
	}
	select {
	case <-other.out:
		t.Fatalf("payload leaked across communities")
	default:
	}
}

func TestHubChannelTagLeavesSharedPayloadUntouched(t *testing.T) {
	h := testHub()
	conn := h.register("guild-1", "ann", func() {}, nil)

	// The shipped payload goes to member streams first and to the channel
	// afterwards; the channel tag must land on a copy, since the write pumps
	// may be reading the original concurrently.
	payload := map[string]interface{}{"type": "lobby_shipped", "lobby_id": int64(7)}
	h.NotifyMember(context.Background(), "guild-1", "ann", payload)
	h.NotifyChannel(context.Background(), "guild-1", "chan-a", payload)

	if _, ok := payload["channel_id"]; ok {
		t.Fatalf("NotifyChannel mutated the caller's payload")
	}

	memberCopy := <-conn.out
	if _, ok := memberCopy["channel_id"]; ok {
		t.Fatalf("member delivery picked up the channel tag")
	}
	channelCopy := <-conn.out
	if channelCopy["channel_id"] != "chan-a" {
		t.Fatalf("channel delivery missing channel_id: %v", channelCopy)
	}
}

func TestHubReplacesDuplicateStream(t *testing.T) {
	h := testHub()
	firstCancelled := false
	firstSuperseded := false
	first := h.register("guild-1", "ann", func() { firstCancelled = true }, func() { firstSuperseded = true })
	second := h.register("guild-1", "ann", func() {}, nil)

	if !firstCancelled {
		t.Fatalf("opening a second stream must cancel the first")
	}
	if !firstSuperseded {
		t.Fatalf("the replaced stream must be closed as superseded")
	}

	h.NotifyMember(context.Background(), "guild-1", "ann", map[string]interface{}{"type": "lobby_status"})
	select {
	case <-second.out:
	default:
		t.Fatalf("replacement stream got no payload")
	}
	select {
	case <-first.out:
		t.Fatalf("stale stream still receiving")
	default:
	}

	// Unregistering the stale handle must not evict the live one.
	h.unregister("guild-1", first)
	h.NotifyMember(context.Background(), "guild-1", "ann", map[string]interface{}{"type": "lobby_status"})
	select {
	case <-second.out:
	default:
		t.Fatalf("live stream evicted by stale unregister")
	}
}
