package services

import (
	"sync"
	"time"
)

type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingCountdown struct {
	token uint64
	timer Timer
}

// Scheduler keeps at most one pending countdown per race. Every Schedule call
// issues a new token; a fired callback must confirm its token is still
// current before acting, so cancelled or superseded timers are inert even if
// Stop loses the race against the timer goroutine.
type Scheduler struct {
	mu      sync.Mutex
	after   AfterFunc
	pending map[string]pendingCountdown
	next    uint64
}

func NewScheduler(after AfterFunc) *Scheduler {
	if after == nil {
		after = realAfterFunc
	}
	return &Scheduler{
		after:   after,
		pending: make(map[string]pendingCountdown),
	}
}

// Schedule arms fire for raceID after delay, replacing any pending countdown.
// The after func must not run fire synchronously.
func (s *Scheduler) Schedule(raceID string, delay time.Duration, fire func(token uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[raceID]; ok && p.timer != nil {
		p.timer.Stop()
	}

	s.next++
	token := s.next
	s.pending[raceID] = pendingCountdown{
		token: token,
		timer: s.after(delay, func() { fire(token) }),
	}

	return token
}

// Valid reports whether token is the current countdown of raceID.
func (s *Scheduler) Valid(raceID string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[raceID]
	return ok && p.token == token
}

// Done clears the countdown of raceID if token is still current.
func (s *Scheduler) Done(raceID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[raceID]; ok && p.token == token {
		delete(s.pending, raceID)
	}
}

// Cancel stops and invalidates the pending countdown of raceID.
func (s *Scheduler) Cancel(raceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[raceID]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, raceID)
	}
}

func (s *Scheduler) Pending(raceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[raceID]
	return ok
}

// Stop cancels every pending countdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for raceID, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, raceID)
	}
}
