package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/broadside-game/broadside/internal/server"
)

// MatchRepository persists completed match results. It implements
// server.Recorder.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a repository on the given pool.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// RecordResult stores one finished match and updates the players' win/loss
// tallies in a single transaction.
func (r *MatchRepository) RecordResult(ctx context.Context, res server.MatchResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, name := range []string{res.PlayerA, res.PlayerB} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO players (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("upserting player %q: %w", name, err)
		}
	}

	winner := nullable(res.Winner)
	loser := nullable(res.Loser)
	if _, err := tx.Exec(ctx,
		`INSERT INTO matches (player_a, player_b, winner, loser, outcome, moves, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.PlayerA, res.PlayerB, winner, loser, res.Outcome, res.Moves, res.StartedAt, res.EndedAt,
	); err != nil {
		return fmt.Errorf("inserting match %s vs %s: %w", res.PlayerA, res.PlayerB, err)
	}

	if res.Winner != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE players SET wins = wins + 1 WHERE name = $1`, res.Winner,
		); err != nil {
			return fmt.Errorf("updating wins for %q: %w", res.Winner, err)
		}
	}
	if res.Loser != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE players SET losses = losses + 1 WHERE name = $1`, res.Loser,
		); err != nil {
			return fmt.Errorf("updating losses for %q: %w", res.Loser, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing match result: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
