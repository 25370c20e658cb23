package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/triviad/internal/chat"
	"github.com/victornm/triviad/internal/domain"
)

func testQuestion() domain.Question {
	return domain.Question{
		Text:          "What is the capital of France?",
		CorrectAnswer: "Paris",
		Incorrect:     []string{"London", "Berlin", "Madrid"},
		Category:      "Geography",
	}
}

func testParticipants() []*domain.Participant {
	return []*domain.Participant{
		{UserID: "a", Name: "A"},
		{UserID: "b", Name: "B"},
		{UserID: "c", Name: "C"},
	}
}

func makeEngine(tr chat.Transport, clock *fakeClock, newTimer func(time.Duration) Timer) *roundEngine {
	c := Config{
		Transport:    tr,
		AnswerWindow: 30 * time.Second,
		Now:          clock.Now,
		NewTimer:     newTimer,
		Perm:         identityPerm,
	}
	return newRoundEngine(c.withDefaults())
}

// With the identity permutation the correct answer sits at the last index.
const correctIdx = 3

func TestRoundEngine_ScoresBySpeed(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport()
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) {
			clock.Advance(3 * time.Second)
			ch <- chat.Selection{UserID: "a", Index: correctIdx}
			ch <- chat.Selection{UserID: "b", Index: 0}
			close(ch)
		},
	}

	e := makeEngine(tr, clock, nil)

	deltas, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
	require.NoError(t, err)

	want := map[string]int64{"a": 900, "b": 0, "c": 0}
	assert.Equal(t, want, deltas)

	// A is congratulated, B learns the answer privately.
	dmsA := tr.dmsFor("a")
	require.Len(t, dmsA, 2)
	assert.Equal(t, "Correct! +900 points!", dmsA[1].Title)

	dmsB := tr.dmsFor("b")
	require.Len(t, dmsB, 2)
	assert.Equal(t, "Wrong!", dmsB[1].Title)
	assert.Contains(t, dmsB[1].Body, "Paris")

	// C only got the question.
	assert.Len(t, tr.dmsFor("c"), 1)

	// The answer is revealed to the channel at round end.
	anns := tr.announcements()
	require.NotEmpty(t, anns)
	assert.Contains(t, anns[len(anns)-1].Body, "Paris")
}

func TestRoundEngine_DuplicateScoredOnce(t *testing.T) {
	tests := map[string]struct {
		first, second chat.Selection
		want          int64
	}{
		"correct then wrong keeps the points": {
			first:  chat.Selection{UserID: "a", Index: correctIdx},
			second: chat.Selection{UserID: "a", Index: 0},
			want:   1000,
		},
		"wrong then correct stays at zero": {
			first:  chat.Selection{UserID: "a", Index: 0},
			second: chat.Selection{UserID: "a", Index: correctIdx},
			want:   0,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			tr := newFakeTransport()
			tr.scripts = []roundScript{
				func(ch chan<- chat.Selection) {
					ch <- tt.first
					ch <- tt.second
					close(ch)
				},
			}

			e := makeEngine(tr, clock, nil)

			deltas, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
			require.NoError(t, err)
			assert.Equal(t, tt.want, deltas["a"])
		})
	}
}

func TestRoundEngine_InvalidEventsDropped(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport()
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) {
			ch <- chat.Selection{UserID: "stranger", Index: correctIdx}
			ch <- chat.Selection{UserID: "a", Index: -1}
			ch <- chat.Selection{UserID: "a", Index: 99}
			close(ch)
		},
	}

	e := makeEngine(tr, clock, nil)

	deltas, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, deltas)

	// Out-of-range picks must not settle the participant: a valid pick from
	// the same user in time would still count. Here nothing was scored, so
	// nobody got a result DM.
	assert.Len(t, tr.dmsFor("a"), 1)
}

func TestRoundEngine_LateSelectionDropped(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport()
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) {
			clock.Advance(31 * time.Second)
			ch <- chat.Selection{UserID: "a", Index: correctIdx}
			close(ch)
		},
	}

	e := makeEngine(tr, clock, nil)

	deltas, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
	require.NoError(t, err)

	// A pick past the 30s window scores nothing even when correct, and the
	// participant gets no result notification.
	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, deltas)
	assert.Len(t, tr.dmsFor("a"), 1)
}

func TestRoundEngine_DeadlineEndsCollection(t *testing.T) {
	clock := newFakeClock()
	timer := newFakeTimer()
	timer.Fire()

	release := make(chan struct{})
	tr := newFakeTransport()
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) {
			<-release
			close(ch)
		},
	}

	e := makeEngine(tr, clock, func(time.Duration) Timer { return timer })

	deltas, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
	close(release)
	require.NoError(t, err)

	// Nobody settled before the deadline; everyone scores zero.
	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, deltas)
}

func TestRoundEngine_CancellationInterruptsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := newFakeClock()
	release := make(chan struct{})
	tr := newFakeTransport()
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) {
			ch <- chat.Selection{UserID: "a", Index: correctIdx}
			cancel()
			<-release
			close(ch)
		},
	}

	e := makeEngine(tr, clock, nil)

	deltas, err := e.play(ctx, "c1", testQuestion(), testParticipants())
	close(release)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1000), deltas["a"], "scores settled before cancellation stay valid")
}

func TestRoundEngine_SharedOptionOrder(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport()
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) { close(ch) },
	}

	reverse := func(n int) []int {
		p := make([]int, n)
		for i := range p {
			p[i] = n - 1 - i
		}
		return p
	}

	c := Config{
		Transport:    tr,
		AnswerWindow: 30 * time.Second,
		Now:          clock.Now,
		Perm:         reverse,
	}
	e := newRoundEngine(c.withDefaults())

	_, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
	require.NoError(t, err)

	// Every participant sees the identical shuffled order.
	prompt := tr.dmsFor("a")[0]
	assert.Equal(t, "1. Paris\n2. Madrid\n3. Berlin\n4. London\n", prompt.Body)
	assert.Equal(t, prompt, tr.dmsFor("b")[0])
	assert.Equal(t, prompt, tr.dmsFor("c")[0])
}

func TestRoundEngine_DMFailureDoesNotAbortRound(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport()
	tr.failDM["b"] = true
	tr.scripts = []roundScript{
		func(ch chan<- chat.Selection) {
			ch <- chat.Selection{UserID: "b", Index: correctIdx}
			close(ch)
		},
	}

	e := makeEngine(tr, clock, nil)

	deltas, err := e.play(context.Background(), "c1", testQuestion(), testParticipants())
	require.NoError(t, err)

	// B never received the prompt but the round ran, and B's pick still
	// counted.
	assert.Equal(t, int64(1000), deltas["b"])
	assert.Len(t, tr.dmsFor("a"), 1)
}

func TestSpeedPoints(t *testing.T) {
	t.Parallel()

	const window = 30 * time.Second

	tests := []struct {
		elapsed time.Duration
		want    int64
	}{
		{elapsed: 0, want: 1000},
		{elapsed: time.Second, want: 967},
		{elapsed: 3 * time.Second, want: 900},
		{elapsed: 15 * time.Second, want: 500},
		{elapsed: 29 * time.Second, want: 500},
		{elapsed: window, want: 500},
		{elapsed: -time.Second, want: 1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, speedPoints(tt.elapsed, window), "elapsed=%s", tt.elapsed)
	}
}
