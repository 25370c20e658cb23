package game

import (
	"context"
	"log/slog"
	"sync"

	"github.com/victornm/triviad/internal/errors"
)

// Registry is the process-wide table of channel → active session. It
// enforces at most one concurrent session per channel. A session removes
// itself when its Run finishes, on every exit path.
type Registry struct {
	c Config

	mu       sync.Mutex
	wg       sync.WaitGroup
	sessions map[string]*Session
}

func NewRegistry(c Config) *Registry {
	return &Registry{
		c:        c,
		sessions: make(map[string]*Session),
	}
}

// Start registers a new session for the channel. The caller launches Run.
func (r *Registry) Start(channelID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[channelID]; ok {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("a game is already in progress in channel %s", channelID))
	}

	s := newSession(channelID, r.c, r)
	r.sessions[channelID] = s
	r.wg.Add(1)

	return s, nil
}

// Get returns the channel's active session, if any.
func (r *Registry) Get(channelID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[channelID]
	return s, ok
}

// End cancels the channel's active session. The session deregisters itself
// once its Run winds down.
func (r *Registry) End(channelID string) error {
	r.mu.Lock()
	s, ok := r.sessions[channelID]
	r.mu.Unlock()

	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("no active game in channel %s", channelID))
	}

	s.Cancel()
	return nil
}

// Shutdown cancels every active session and waits for their runs to wind
// down, so in-flight ledger flushes complete before the caller tears down
// shared infrastructure. Waiting is bounded by ctx.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	for _, s := range r.sessions {
		s.Cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.WarnContext(ctx, "game: shutdown abandoned waiting for sessions", "error", ctx.Err())
	}
}

// release removes the session from the table if it is still the registered
// one for its channel.
func (r *Registry) release(channelID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[channelID]; ok && cur == s {
		delete(r.sessions, channelID)
		r.wg.Done()
	}
}
