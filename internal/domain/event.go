package domain

import "time"

const (
	EventNameScorePersisted = "score.persisted"
	EventNameSessionEnded   = "session.ended"
)

type EventScorePersisted struct {
	UserID   string
	Username string
	Total    int64
	PlayedAt time.Time
}

func (EventScorePersisted) Name() string { return EventNameScorePersisted }

type EventSessionEnded struct {
	SessionID string
	ChannelID string
	Rounds    int
	Standings []Standing
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }
