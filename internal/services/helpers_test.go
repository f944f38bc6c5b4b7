package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"typerace/config"
	"typerace/models"
)

var testQuote = &models.Quote{
	ID:         "q1",
	Text:       "the quick brown fox",
	Author:     "Anonymous",
	Categories: []string{"classic"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type manualTimer struct {
	owner   *manualTimers
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// manualTimers records scheduled callbacks and runs them only when told to.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{owner: m, delay: d, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Fire runs every armed timer, including stopped ones when force is set, to
// mimic a Stop that lost the race against the timer goroutine.
func (m *manualTimers) fire(force bool) int {
	m.mu.Lock()
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.fired && (force || !t.stopped) {
			t.fired = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (m *manualTimers) FireAll() int { return m.fire(false) }

func (m *manualTimers) FireEvenStopped() int { return m.fire(true) }

func (m *manualTimers) Armed() []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*manualTimer
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

type testRig struct {
	coord  *Coordinator
	store  *MemoryStore
	hub    *Hub
	timers *manualTimers
	clock  *manualClock
	config *config.Config
}

func newTestRig(t *testing.T, quotes ...*models.Quote) *testRig {
	t.Helper()

	if len(quotes) == 0 {
		quotes = []*models.Quote{testQuote}
	}

	cfg := config.Defaults()
	store := NewMemoryStore(quotes...)
	hub := NewHub(nil, discardLogger())
	t.Cleanup(hub.Close)

	coord := NewCoordinator(store, store, store, hub, cfg, discardLogger())
	timers := &manualTimers{}
	coord.sched = NewScheduler(timers.AfterFunc)
	clock := &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	coord.now = clock.Now
	store.now = clock.Now
	coord.recorder.backoff = 0

	return &testRig{
		coord:  coord,
		store:  store,
		hub:    hub,
		timers: timers,
		clock:  clock,
		config: cfg,
	}
}

func (r *testRig) newRace(t *testing.T, creator string) string {
	t.Helper()

	race, err := r.store.CreateRace(context.Background(), creator, false, "")
	require.NoError(t, err)
	return race.ID
}

func (r *testRig) join(t *testing.T, raceID, userID string) *Subscription {
	t.Helper()

	sub, err := r.coord.Join(context.Background(), raceID, player(userID))
	require.NoError(t, err)
	return sub
}

func (r *testRig) race(t *testing.T, raceID string) *models.RaceSession {
	t.Helper()

	race, err := r.store.GetRace(context.Background(), raceID)
	require.NoError(t, err)
	return race
}

func player(id string) models.Player {
	return models.Player{ID: id, Username: "user-" + id}
}

func eventTypes(events []models.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType())
	}
	return types
}

func lastRoster(t *testing.T, events []models.Event) models.PlayerListEvent {
	t.Helper()

	for i := len(events) - 1; i >= 0; i-- {
		if pl, ok := events[i].(models.PlayerListEvent); ok {
			return pl
		}
	}
	t.Fatalf("no player_list among %v", eventTypes(events))
	return models.PlayerListEvent{}
}

func playerIDs(players []models.Player) []string {
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}
