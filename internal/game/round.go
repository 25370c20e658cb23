package game

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/triviad/internal/chat"
	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/telemetry"
)

const (
	maxPoints = 1000
	minPoints = 500

	maxConcurrentDM = 20
)

// Timer abstracts time.Timer so tests can fire deadlines deterministically.
type Timer interface {
	C() <-chan time.Time
	Stop()
}

type stdTimer struct {
	t *time.Timer
}

func (t stdTimer) C() <-chan time.Time { return t.t.C }
func (t stdTimer) Stop()               { t.t.Stop() }

func newStdTimer(d time.Duration) Timer {
	return stdTimer{t: time.NewTimer(d)}
}

// roundEngine runs one question round: distribute privately, collect picks
// against the deadline, score by speed.
type roundEngine struct {
	transport chat.Transport
	window    time.Duration

	now      func() time.Time
	newTimer func(d time.Duration) Timer
	perm     func(n int) []int
}

func newRoundEngine(c Config) *roundEngine {
	return &roundEngine{
		transport: c.Transport,
		window:    c.AnswerWindow,
		now:       c.Now,
		newTimer:  c.NewTimer,
		perm:      c.Perm,
	}
}

// play presents one question to every participant and returns the round's
// per-participant score deltas, zero for anyone who never settled. A context
// cancellation interrupts the collection wait and is returned to the caller;
// the deltas collected so far are still valid.
func (e *roundEngine) play(ctx context.Context, channelID string, q domain.Question, participants []*domain.Participant) (map[string]int64, error) {
	round := &domain.Round{
		Question:  q,
		Options:   e.shuffleOptions(q),
		StartedAt: e.now(),
		Settled:   make(map[string]bool),
	}

	deltas := make(map[string]int64, len(participants))
	registered := make(map[string]bool, len(participants))
	for _, p := range participants {
		deltas[p.UserID] = 0
		registered[p.UserID] = true
	}

	// The selection stream is opened before the prompts go out so no pick
	// can slip between distribution and collection.
	collectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := e.transport.AwaitSelections(collectCtx, channelID)
	if err != nil {
		return nil, fmt.Errorf("game: open selection stream: %w", err)
	}

	e.distribute(ctx, round, participants)

	if err := e.transport.Announce(ctx, channelID, chat.Message{
		Title: "Question sent to all players!",
		Body:  fmt.Sprintf("You have %d seconds to answer.", int(e.window.Seconds())),
	}); err != nil {
		slog.WarnContext(ctx, "game: announce round failed", "channel", channelID, "error", err)
	}

	timer := e.newTimer(e.window)
	defer timer.Stop()

collect:
	for len(round.Settled) < len(participants) {
		select {
		case <-ctx.Done():
			return deltas, ctx.Err()

		case <-timer.C():
			break collect

		case sel, ok := <-stream:
			if !ok {
				break collect
			}
			if !registered[sel.UserID] || round.Settled[sel.UserID] || !round.InRange(sel.Index) {
				continue
			}

			// A pick that raced the fired deadline out of the select is
			// dropped, not clamped; it must not settle the participant.
			elapsed := e.now().Sub(round.StartedAt)
			if elapsed >= e.window {
				slog.InfoContext(ctx, "game: drop late selection",
					"user", sel.UserID, "elapsed", elapsed, "gateway_at", sel.At)
				continue
			}

			// Claiming into the settled set is what makes an answer final;
			// everything after it is best-effort notification.
			round.Settled[sel.UserID] = true

			if round.Options[sel.Index] == q.CorrectAnswer {
				pts := speedPoints(elapsed, e.window)
				deltas[sel.UserID] = pts
				telemetry.AnswersScored.WithLabelValues(telemetry.AnswerCorrect).Inc()

				e.whisper(ctx, sel.UserID, chat.Message{
					Title: fmt.Sprintf("Correct! +%d points!", pts),
				})
			} else {
				telemetry.AnswersScored.WithLabelValues(telemetry.AnswerWrong).Inc()

				e.whisper(ctx, sel.UserID, chat.Message{
					Title: "Wrong!",
					Body:  fmt.Sprintf("The correct answer was: %s", q.CorrectAnswer),
				})
			}
		}
	}

	// Stop accepting picks before revealing the answer.
	cancel()

	if err := e.transport.Announce(ctx, channelID, chat.Message{
		Title: "Time's up!",
		Body:  fmt.Sprintf("The correct answer was: %s", q.CorrectAnswer),
	}); err != nil {
		slog.WarnContext(ctx, "game: announce answer failed", "channel", channelID, "error", err)
	}

	telemetry.RoundsPlayed.Inc()

	return deltas, nil
}

// shuffleOptions builds the option order shared by every participant:
// distractors plus the correct answer under a single permutation, fixed for
// the round's lifetime.
func (e *roundEngine) shuffleOptions(q domain.Question) []string {
	all := make([]string, 0, len(q.Incorrect)+1)
	all = append(all, q.Incorrect...)
	all = append(all, q.CorrectAnswer)

	shuffled := make([]string, len(all))
	for i, j := range e.perm(len(all)) {
		shuffled[i] = all[j]
	}

	return shuffled
}

// distribute DMs the prompt and the shared options to every participant.
// Per-user delivery failures are skipped.
func (e *roundEngine) distribute(ctx context.Context, round *domain.Round, participants []*domain.Participant) {
	msg := chat.Message{
		Title: round.Question.Text,
		Body:  formatOptions(round.Options),
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentDM)

	for _, p := range participants {
		p := p
		eg.Go(func() error {
			if err := e.transport.SendPrivate(ctx, p.UserID, msg); err != nil {
				slog.WarnContext(ctx, "game: deliver question failed",
					"user", p.UserID, "error", err)
			}
			return nil
		})
	}

	_ = eg.Wait()
}

func (e *roundEngine) whisper(ctx context.Context, userID string, msg chat.Message) {
	if err := e.transport.SendPrivate(ctx, userID, msg); err != nil {
		slog.WarnContext(ctx, "game: deliver result failed", "user", userID, "error", err)
	}
}

func formatOptions(options []string) string {
	var b strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	return b.String()
}

// speedPoints awards a correct answer by how fast it arrived: the full
// maxPoints at the start of the window, decaying linearly and clamped at
// minPoints.
func speedPoints(elapsed, window time.Duration) int64 {
	frac := 1 - elapsed.Seconds()/window.Seconds()
	pts := int64(math.Round(maxPoints * frac))

	if pts > maxPoints {
		pts = maxPoints
	}
	if pts < minPoints {
		pts = minPoints
	}

	return pts
}

func randPerm(n int) []int {
	return rand.Perm(n)
}
