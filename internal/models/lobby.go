// internal/models/lobby.go
package models

import "time"

// LobbySnapshot is the immutable view of a lobby handed to renderers,
// persisted by the write-through store, and returned from the service
// surface. It carries everything a status card needs; the live lobby record
// itself never leaves the matchmaking core.
type LobbySnapshot struct {
	LobbyID         int64  `json:"lobby_id"`
	CommunityID     string `json:"community_id"`
	OriginChannelID string `json:"origin_channel_id"`
	HostID          string `json:"host_id"`

	Capacity  int      `json:"capacity"`
	PlayerIDs []string `json:"player_ids"`
	SeatsLeft int      `json:"seats_left"`

	RatingMode     bool               `json:"rating_mode"`
	HostRating     float64            `json:"host_rating,omitempty"`
	RatingByPlayer map[string]float64 `json:"rating_by_player,omitempty"`

	// RatingFloor is the effective floor at snapshot time; only meaningful
	// when HasRatingFloor is set.
	RatingFloor    float64 `json:"rating_floor,omitempty"`
	HasRatingFloor bool    `json:"has_rating_floor"`
	LastSeatOpen   bool    `json:"last_seat_open"`

	RoomLink  string    `json:"room_link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
