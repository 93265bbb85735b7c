// internal/database/lobby.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueup-gg/queueup/internal/models"
)

// LobbyStore is the write-through persistence adapter for lobby snapshots.
// The matchmaking core treats it as fire-and-forget: failures are logged by
// the caller and never block an in-memory transition. Rows exist so an
// external recovery step can replay the same record shape after a restart.
type LobbyStore struct {
	pool *pgxpool.Pool
}

// NewLobbyStore wraps a pgx pool.
func NewLobbyStore(pool *pgxpool.Pool) *LobbyStore {
	return &LobbyStore{pool: pool}
}

// Save upserts the snapshot row keyed by (community_id, lobby_id).
func (s *LobbyStore) Save(ctx context.Context, snap models.LobbySnapshot) error {
	ratings, err := json.Marshal(snap.RatingByPlayer)
	if err != nil {
		return fmt.Errorf("failed to marshal rating snapshots: %w", err)
	}

	q := `
	INSERT INTO lobbies (
		community_id, lobby_id, origin_channel_id, host_id,
		capacity, player_ids,
		rating_mode, host_rating, rating_by_player,
		room_link, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4,
	        $5, $6,
	        $7, $8, $9,
	        $10, $11, now())
	ON CONFLICT (community_id, lobby_id) DO UPDATE SET
		player_ids = EXCLUDED.player_ids,
		rating_by_player = EXCLUDED.rating_by_player,
		room_link = EXCLUDED.room_link,
		updated_at = now()
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			snap.CommunityID,
			snap.LobbyID,
			snap.OriginChannelID,
			snap.HostID,
			snap.Capacity,
			snap.PlayerIDs,
			snap.RatingMode,
			snap.HostRating,
			ratings,
			snap.RoomLink,
			snap.CreatedAt,
		)
		return err
	})
}

// Delete removes the snapshot row once a lobby ships, empties, or expires.
func (s *LobbyStore) Delete(ctx context.Context, communityID string, lobbyID int64) error {
	q := `DELETE FROM lobbies WHERE community_id = $1 AND lobby_id = $2`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, communityID, lobbyID)
		return err
	})
}
