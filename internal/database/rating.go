// internal/database/rating.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueup-gg/queueup/internal/lobby"
)

// Ladder reads the ranked-ladder tables maintained by the results pipeline.
// It implements lobby.RatingSource.
type Ladder struct {
	pool *pgxpool.Pool
}

// NewLadder wraps a pgx pool.
func NewLadder(pool *pgxpool.Pool) *Ladder {
	return &Ladder{pool: pool}
}

// GetRating returns the member's rating and games played. A missing row is
// reported as not-found, not an error; more than one row for the same
// identity counts as ambiguous and is also not-found, so eligibility fails
// closed rather than guessing.
func (l *Ladder) GetRating(ctx context.Context, communityID, memberID string) (lobby.Rating, bool, error) {
	q := `
	SELECT rating, games_played
	  FROM ladder
	  WHERE community_id = $1 AND member_id = $2
	`
	rows, err := l.pool.Query(ctx, q, communityID, memberID)
	if err != nil {
		return lobby.Rating{}, false, err
	}
	defer rows.Close()

	var r lobby.Rating
	count := 0
	for rows.Next() {
		if err := rows.Scan(&r.Value, &r.Games); err != nil {
			return lobby.Rating{}, false, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return lobby.Rating{}, false, err
	}
	if count != 1 {
		return lobby.Rating{}, false, nil
	}
	return r, true, nil
}

// LeagueRatings returns every rating in the community's ladder with at
// least minGames played, feeding window sizing at lobby creation.
func (l *Ladder) LeagueRatings(ctx context.Context, communityID string, minGames int) ([]float64, error) {
	q := `
	SELECT rating
	  FROM ladder
	  WHERE community_id = $1 AND games_played >= $2
	`
	rows, err := l.pool.Query(ctx, q, communityID, minGames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ratings, nil
}
