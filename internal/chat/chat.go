// Package chat is the boundary to the chat gateway. The game core only sees
// the Transport interface; the redis implementation bridges to the gateway
// process over pub/sub.
package chat

import (
	"context"
	"time"
)

// Message is a renderable notification. Formatting beyond a title and body
// is the gateway's business.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Selection is one answer pick arriving from a user. Index is zero-based
// into the round's shared option order. At is the gateway receive time,
// carried for logging; scoring uses the engine's own clock.
type Selection struct {
	UserID string    `json:"user_id"`
	Index  int       `json:"index"`
	At     time.Time `json:"at"`
}

// Member is a channel member who opted in to a game.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Bot  bool   `json:"bot"`
}

type Transport interface {
	// Announce delivers a message to the whole channel.
	Announce(ctx context.Context, channelID string, msg Message) error

	// SendPrivate delivers a message to a single user. A failure concerns
	// that user only.
	SendPrivate(ctx context.Context, userID string, msg Message) error

	// AwaitSelections streams answer picks for the channel until ctx is
	// done, at which point the returned channel is closed. No validation
	// is performed here.
	AwaitSelections(ctx context.Context, channelID string) (<-chan Selection, error)

	// CollectOptIns gathers members opting in to a game over the window,
	// deduplicated, in first-come order.
	CollectOptIns(ctx context.Context, channelID string, window time.Duration) ([]Member, error)

	// DisplayName resolves a user's display name.
	DisplayName(ctx context.Context, userID string) (string, error)
}
