package server

import (
	"context"
	"time"
)

// MatchResult is the record of one completed match.
type MatchResult struct {
	PlayerA   string
	PlayerB   string
	Winner    string // empty if no winner
	Loser     string // empty if no winner
	Outcome   string // win, quit, timeout, forfeit, abandoned
	Moves     int    // winner's fire count
	StartedAt time.Time
	EndedAt   time.Time
}

// Recorder persists completed match results. Implementations must be safe
// for concurrent use; the supervisor calls it off the hot path with its own
// timeout.
type Recorder interface {
	RecordResult(ctx context.Context, res MatchResult) error
}
