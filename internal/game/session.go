package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/triviad/internal/chat"
	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/event"
	"github.com/victornm/triviad/internal/leaderboard"
	"github.com/victornm/triviad/internal/telemetry"
)

const (
	defaultRegistrationWindow = 10 * time.Second
	defaultAnswerWindow       = 30 * time.Second
	defaultRoundBreak         = 3 * time.Second
	defaultQuestionCount      = 10
	defaultTopN               = 10

	flushTimeout = 30 * time.Second
)

// QuestionSource supplies a batch of quiz items.
type QuestionSource interface {
	FetchBatch(ctx context.Context, count int) ([]domain.Question, error)
}

// ScoreLedger durably accumulates per-user points across sessions.
type ScoreLedger interface {
	AddPoints(ctx context.Context, userID, name string, delta int64, playedAt time.Time) (int64, error)
}

type Config struct {
	Transport chat.Transport
	Questions QuestionSource
	Ledger    ScoreLedger
	EventBus  *event.Bus

	RegistrationWindow time.Duration
	AnswerWindow       time.Duration
	RoundBreak         time.Duration
	QuestionCount      int
	TopN               int

	// Time and shuffle hooks, defaulted for production.
	Now      func() time.Time
	NewTimer func(d time.Duration) Timer
	Perm     func(n int) []int
}

func (c Config) withDefaults() Config {
	if c.RegistrationWindow <= 0 {
		c.RegistrationWindow = defaultRegistrationWindow
	}
	if c.AnswerWindow <= 0 {
		c.AnswerWindow = defaultAnswerWindow
	}
	if c.RoundBreak <= 0 {
		c.RoundBreak = defaultRoundBreak
	}
	if c.QuestionCount <= 0 {
		c.QuestionCount = defaultQuestionCount
	}
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewTimer == nil {
		c.NewTimer = newStdTimer
	}
	if c.Perm == nil {
		c.Perm = randPerm
	}
	return c
}

// Session owns one game in one channel: registration, round sequencing,
// standings broadcasts and the final ledger flush.
type Session struct {
	id        string
	channelID string

	c        Config
	engine   *roundEngine
	registry *Registry

	stop     chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	state        domain.SessionState
	participants []*domain.Participant
	round        int
}

func newSession(channelID string, c Config, registry *Registry) *Session {
	c = c.withDefaults()

	return &Session{
		id:        uuid.NewString(),
		channelID: channelID,
		c:         c,
		engine:    newRoundEngine(c),
		registry:  registry,
		stop:      make(chan struct{}),
		state:     domain.StateRegistering,
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ChannelID() string { return s.channelID }

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Round returns the number of completed rounds.
func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Standings returns the current leaderboard snapshot.
func (s *Session) Standings() []domain.Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return leaderboard.Snapshot(s.participants)
}

// Cancel asks the session to stop at the next safe point. Safe to call more
// than once and from any goroutine.
func (s *Session) Cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run drives the session to completion. Deregistration and the terminal
// state are unconditional on every exit path.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	telemetry.ActiveSessions.Inc()
	rounds := 0

	defer func() {
		s.setState(domain.StateEnded)
		s.publishEnded(ctx, rounds)
		if s.registry != nil {
			s.registry.release(s.channelID, s)
		}
		telemetry.ActiveSessions.Dec()
	}()

	if !s.register(ctx) {
		return
	}

	s.setState(domain.StateRunning)

	qs, err := s.c.Questions.FetchBatch(ctx, s.c.QuestionCount)
	if err != nil {
		slog.ErrorContext(ctx, "game: fetch questions failed",
			"channel", s.channelID, "error", err)
		s.announce(ctx, chat.Message{
			Title: "Could not fetch questions, the game is cancelled.",
		})
		s.finish(ctx)
		return
	}

	for i, q := range qs {
		if canceled(ctx) {
			break
		}

		deltas, err := s.engine.play(ctx, s.channelID, q, s.snapshotParticipants())
		s.applyDeltas(deltas)
		if err != nil {
			if !canceled(ctx) {
				slog.ErrorContext(ctx, "game: round failed",
					"channel", s.channelID, "error", err)
			}
			break
		}
		rounds++
		s.setRound(rounds)

		s.broadcastStandings(ctx, "Current Standings")

		if i < len(qs)-1 && !s.pause(ctx) {
			break
		}
	}

	s.announce(ctx, chat.Message{Title: "Game Over!"})
	s.finish(ctx)
}

// register announces the game and collects opt-ins over the registration
// window. Returns false when nobody joined.
func (s *Session) register(ctx context.Context) bool {
	s.announce(ctx, chat.Message{
		Title: "New Trivia Game Starting!",
		Body:  fmt.Sprintf("Opt in to join the game! Starting in %d seconds...", int(s.c.RegistrationWindow.Seconds())),
	})

	members, err := s.c.Transport.CollectOptIns(ctx, s.channelID, s.c.RegistrationWindow)
	if err != nil {
		slog.ErrorContext(ctx, "game: collect opt-ins failed",
			"channel", s.channelID, "error", err)
	}

	var participants []*domain.Participant
	for _, m := range members {
		if m.Bot {
			continue
		}

		name := m.Name
		if name == "" {
			resolved, err := s.c.Transport.DisplayName(ctx, m.ID)
			if err != nil {
				slog.WarnContext(ctx, "game: resolve display name failed",
					"user", m.ID, "error", err)
				resolved = m.ID
			}
			name = resolved
		}

		participants = append(participants, &domain.Participant{
			UserID: m.ID,
			Name:   name,
		})
	}

	s.mu.Lock()
	s.participants = participants
	s.mu.Unlock()

	if len(participants) == 0 {
		s.announce(ctx, chat.Message{Title: "No players joined the game!"})
		return false
	}

	var roster strings.Builder
	for _, p := range participants {
		fmt.Fprintf(&roster, "• %s\n", p.Name)
	}
	s.announce(ctx, chat.Message{
		Title: "Game starting with players:",
		Body:  roster.String(),
	})

	return true
}

// finish broadcasts the final standings and flushes every participant's
// session score to the ledger. Per-participant write failures are isolated.
// Nothing is written when nobody played.
func (s *Session) finish(ctx context.Context) {
	ps := s.snapshotParticipants()
	if len(ps) == 0 {
		return
	}

	s.broadcastStandings(ctx, "Final Standings")

	// The flush must survive session cancellation.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	playedAt := s.c.Now()
	for _, p := range ps {
		if _, err := s.c.Ledger.AddPoints(flushCtx, p.UserID, p.Name, p.Score, playedAt); err != nil {
			slog.ErrorContext(flushCtx, "game: persist score failed",
				"channel", s.channelID, "user", p.UserID, "error", err)
		}
	}
}

// broadcastStandings announces the top of the board to the channel and DMs
// each participant their own rank and score, best effort.
func (s *Session) broadcastStandings(ctx context.Context, title string) {
	standings := s.Standings()

	var b strings.Builder
	for i, st := range leaderboard.Top(standings, s.c.TopN) {
		fmt.Fprintf(&b, "%d. %s — %d\n", i+1, st.Name, st.Score)
	}
	s.announce(ctx, chat.Message{Title: title, Body: b.String()})

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentDM)

	for _, st := range standings {
		st := st
		eg.Go(func() error {
			pos, score, ok := leaderboard.Rank(standings, st.UserID)
			if !ok {
				return nil
			}

			err := s.c.Transport.SendPrivate(ctx, st.UserID, chat.Message{
				Title: "Your Current Standing",
				Body:  fmt.Sprintf("Position: #%d\nScore: %d", pos, score),
			})
			if err != nil {
				slog.WarnContext(ctx, "game: deliver standing failed",
					"user", st.UserID, "error", err)
			}
			return nil
		})
	}

	_ = eg.Wait()
}

// pause waits out the break between rounds; false when cancelled.
func (s *Session) pause(ctx context.Context) bool {
	timer := s.c.NewTimer(s.c.RoundBreak)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

func (s *Session) applyDeltas(deltas map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		if d := deltas[p.UserID]; d > 0 {
			p.Score += d
		}
	}
}

func (s *Session) setRound(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round = n
}

func (s *Session) snapshotParticipants() []*domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Participant(nil), s.participants...)
}

func (s *Session) setState(st domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Session) announce(ctx context.Context, msg chat.Message) {
	if err := s.c.Transport.Announce(ctx, s.channelID, msg); err != nil {
		slog.WarnContext(ctx, "game: announce failed",
			"channel", s.channelID, "error", err)
	}
}

func (s *Session) publishEnded(ctx context.Context, rounds int) {
	if s.c.EventBus == nil {
		return
	}

	s.c.EventBus.Publish(context.WithoutCancel(ctx), domain.EventSessionEnded{
		SessionID: s.id,
		ChannelID: s.channelID,
		Rounds:    rounds,
		Standings: s.Standings(),
	})
}

func canceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
