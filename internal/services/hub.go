package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"typerace/models"
)

var ErrSubscriptionClosed = errors.New("hub: subscription closed")

// Mirror forwards race channel events to an external fan-out service.
type Mirror interface {
	Publish(ctx context.Context, raceID string, ev models.Event) error
}

// Subscription is one connection's view of a race channel. Events are queued
// without bound so a publisher never blocks on a slow reader, and are handed
// out in publish order.
type Subscription struct {
	ID     string
	RaceID string
	UserID string

	mu     sync.Mutex
	queue  []models.Event
	closed bool
	notify chan struct{}
}

func newSubscription(raceID, userID string) *Subscription {
	return &Subscription{
		ID:     uuid.NewString(),
		RaceID: raceID,
		UserID: userID,
		notify: make(chan struct{}, 1),
	}
}

func (s *Subscription) push(ev models.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	s.wake()
	return true
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

// Next blocks until an event is queued. Events queued before the subscription
// was closed are still returned; after that it yields ErrSubscriptionClosed.
func (s *Subscription) Next(ctx context.Context) (models.Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain returns every queued event without blocking.
func (s *Subscription) Drain() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.queue
	s.queue = nil
	return events
}

type mirrored struct {
	raceID string
	event  models.Event
}

// Hub fans events out to every subscription of a race channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Subscription
	closed   bool

	mirror   Mirror
	mirrorCh chan mirrored
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewHub(mirror Mirror, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		channels: make(map[string]map[string]*Subscription),
		mirror:   mirror,
		logger:   logger,
	}

	if mirror != nil {
		h.mirrorCh = make(chan mirrored, 256)
		h.wg.Add(1)
		go h.runMirror()
	}

	return h
}

func (h *Hub) Subscribe(raceID, userID string) *Subscription {
	sub := newSubscription(raceID, userID)

	h.mu.Lock()
	if h.channels[raceID] == nil {
		h.channels[raceID] = make(map[string]*Subscription)
	}
	h.channels[raceID][sub.ID] = sub
	h.mu.Unlock()

	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if subs, ok := h.channels[sub.RaceID]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.channels, sub.RaceID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish queues ev on every subscription currently attached to raceID and
// returns how many received it.
func (h *Hub) Publish(raceID string, ev models.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.channels[raceID] {
		if sub.push(ev) {
			delivered++
		}
	}

	if h.mirrorCh != nil && !h.closed {
		select {
		case h.mirrorCh <- mirrored{raceID: raceID, event: ev}:
		default:
			h.logger.Warn("Mirror queue full, dropping event", "race_id", raceID, "type", ev.EventType())
		}
	}

	return delivered
}

// Send queues ev for a single subscription only.
func (h *Hub) Send(sub *Subscription, ev models.Event) bool {
	if sub == nil {
		return false
	}
	return sub.push(ev)
}

func (h *Hub) Subscribers(raceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[raceID])
}

func (h *Hub) runMirror() {
	defer h.wg.Done()

	for m := range h.mirrorCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.mirror.Publish(ctx, m.raceID, m.event); err != nil {
			h.logger.Warn("Failed to mirror race event", "race_id", m.raceID, "type", m.event.EventType(), "error", err)
		}
		cancel()
	}
}

// Close stops the mirror worker after it has flushed queued events and closes
// every remaining subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for raceID, subs := range h.channels {
		for _, sub := range subs {
			sub.close()
		}
		delete(h.channels, raceID)
	}
	if h.mirrorCh != nil {
		close(h.mirrorCh)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
