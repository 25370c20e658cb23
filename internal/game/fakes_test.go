package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/victornm/triviad/internal/chat"
	"github.com/victornm/triviad/internal/domain"
)

// fakeClock is a manually advanced clock for deterministic elapsed times.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeTimer fires only when the test says so.
type fakeTimer struct {
	ch chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time, 1)}
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop()               {}

func (t *fakeTimer) Fire() {
	t.ch <- time.Now()
}

// roundScript feeds one round's selection stream and closes it when done.
type roundScript func(ch chan<- chat.Selection)

// fakeTransport records deliveries and plays back scripted opt-ins and
// selection streams.
type fakeTransport struct {
	mu        sync.Mutex
	announced []chat.Message
	dms       map[string][]chat.Message
	failDM    map[string]bool

	optIns []chat.Member

	scripts []roundScript
	round   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		dms:    make(map[string][]chat.Message),
		failDM: make(map[string]bool),
	}
}

func (f *fakeTransport) Announce(_ context.Context, _ string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, msg)
	return nil
}

func (f *fakeTransport) SendPrivate(_ context.Context, userID string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDM[userID] {
		return fmt.Errorf("user %s unreachable", userID)
	}
	f.dms[userID] = append(f.dms[userID], msg)
	return nil
}

func (f *fakeTransport) AwaitSelections(ctx context.Context, _ string) (<-chan chat.Selection, error) {
	f.mu.Lock()
	var script roundScript
	if f.round < len(f.scripts) {
		script = f.scripts[f.round]
	}
	f.round++
	f.mu.Unlock()

	ch := make(chan chat.Selection)
	go func() {
		if script != nil {
			script(ch)
		} else {
			close(ch)
		}
	}()

	return ch, nil
}

func (f *fakeTransport) CollectOptIns(_ context.Context, _ string, _ time.Duration) ([]chat.Member, error) {
	return f.optIns, nil
}

func (f *fakeTransport) DisplayName(_ context.Context, userID string) (string, error) {
	return userID, nil
}

func (f *fakeTransport) announcements() []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.announced...)
}

func (f *fakeTransport) dmsFor(userID string) []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.dms[userID]...)
}

// fakeSource serves a fixed batch.
type fakeSource struct {
	qs  []domain.Question
	err error
}

func (f *fakeSource) FetchBatch(_ context.Context, _ int) ([]domain.Question, error) {
	return f.qs, f.err
}

// fakeLedger records writes and can fail for chosen users.
type fakeLedger struct {
	mu      sync.Mutex
	writes  map[string]int64
	failFor map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		writes:  make(map[string]int64),
		failFor: make(map[string]bool),
	}
}

func (f *fakeLedger) AddPoints(_ context.Context, userID, _ string, delta int64, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] {
		return 0, fmt.Errorf("write failed for %s", userID)
	}
	f.writes[userID] += delta
	return f.writes[userID], nil
}

func (f *fakeLedger) written() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.writes))
	for k, v := range f.writes {
		out[k] = v
	}
	return out
}

// identityPerm keeps the option order as built: distractors first, the
// correct answer last.
func identityPerm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}
