// internal/lobby/ports.go
package lobby

import (
	"context"

	"github.com/queueup-gg/queueup/internal/models"
)

// RatingSource is the external ranked-ladder service. Lookups are slow
// (network) and must only ever run outside the store lock. An ambiguous
// identity is reported as not-found, never guessed at.
type RatingSource interface {
	GetRating(ctx context.Context, communityID, memberID string) (Rating, bool, error)
	// LeagueRatings returns the ratings of all community members with at
	// least minGames played; feeds window sizing at lobby creation.
	LeagueRatings(ctx context.Context, communityID string, minGames int) ([]float64, error)
}

// Provisioner allocates the actual game room once a lobby fills. Exactly-
// once behavior is the caller's responsibility via the lobby's in-flight
// flag; the provisioner itself is not assumed idempotent.
type Provisioner interface {
	CreateRoom(ctx context.Context, name, format string, public bool) (string, error)
}

// Notifier delivers status payloads to members or channels. Best effort: a
// member who cannot receive notifications must never block a lobby state
// transition, so implementations log and swallow delivery failures.
type Notifier interface {
	NotifyMember(ctx context.Context, communityID, memberID string, payload map[string]interface{})
	NotifyChannel(ctx context.Context, communityID, channelID string, payload map[string]interface{})
}

// Persister is the write-through lobby snapshot store. Fire-and-forget from
// the core's perspective; failures are logged and never roll back the
// in-memory transition.
type Persister interface {
	Save(ctx context.Context, snap models.LobbySnapshot) error
	Delete(ctx context.Context, communityID string, lobbyID int64) error
}

// EventPublisher pushes lobby lifecycle events onto a queue for
// out-of-process consumers. Best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}
