package domain

import "time"

// SessionState is the lifecycle state of a game session.
type SessionState string

const (
	StateRegistering SessionState = "registering"
	StateRunning     SessionState = "running"
	StateEnded       SessionState = "ended"
)

// Participant is one registered player within a session. Score accumulates
// over the session and never decreases.
type Participant struct {
	UserID string
	Name   string
	Score  int64
}

// Question is one quiz item as fetched from the question source.
// Immutable after fetch.
type Question struct {
	Text          string
	CorrectAnswer string
	Incorrect     []string
	Category      string
}

// Round is the runtime state of presenting one question. Options holds the
// single shuffled order shared by every participant; it is fixed at round
// start. Settled records who already had an answer scored this round.
type Round struct {
	Question  Question
	Options   []string
	StartedAt time.Time
	Settled   map[string]bool
}

// InRange reports whether a zero-based option index is valid for this round.
func (r *Round) InRange(idx int) bool {
	return idx >= 0 && idx < len(r.Options)
}

// Standing is one leaderboard row.
type Standing struct {
	UserID string
	Name   string
	Score  int64
}

// LedgerEntry is a participant's durable cumulative record across sessions.
type LedgerEntry struct {
	Name       string
	Total      int64
	LastPlayed time.Time
}
