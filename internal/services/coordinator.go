package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"typerace/config"
	"typerace/internal/status"
	"typerace/models"
	"typerace/monitoring"
)

const fireTimeout = 10 * time.Second

// session is the in-memory state of one race. Every field is guarded by mu,
// which is the serialization domain for all events of the race.
type session struct {
	mu        sync.Mutex
	id        string
	race      *models.RaceSession
	quote     *models.Quote
	tracker   *Tracker
	subs      map[string]*Subscription
	finishers int
	gone      bool
}

// Coordinator runs the race state machine. Events for one race are applied
// one at a time; different races proceed in parallel.
type Coordinator struct {
	races    RaceStore
	quotes   QuoteProvider
	recorder *Recorder
	hub      *Hub
	sched    *Scheduler
	roster   RosterWriter
	monitor  *monitoring.Monitor
	config   *config.Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewCoordinator(races RaceStore, results ResultStore, quotes QuoteProvider, hub *Hub, cfg *config.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		races:    races,
		quotes:   quotes,
		recorder: NewRecorder(results, cfg.ResultWriteRetries, logger),
		hub:      hub,
		sched:    NewScheduler(nil),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// WithRosterCache mirrors every roster change into w.
func (c *Coordinator) WithRosterCache(w RosterWriter) *Coordinator {
	c.roster = w
	return c
}

func (c *Coordinator) WithMonitor(m *monitoring.Monitor) *Coordinator {
	c.monitor = m
	return c
}

// lock returns the session of raceID with its mutex held, loading it from the
// store on first use.
func (c *Coordinator) lock(ctx context.Context, raceID string) (*session, error) {
	for {
		c.mu.Lock()
		s, ok := c.sessions[raceID]
		if !ok {
			s = &session{id: raceID, subs: make(map[string]*Subscription)}
			c.sessions[raceID] = s
		}
		c.mu.Unlock()

		s.mu.Lock()
		if s.gone {
			s.mu.Unlock()
			continue
		}

		if s.race == nil {
			race, err := c.races.GetRace(ctx, raceID)
			if err != nil {
				c.evict(s)
				s.mu.Unlock()
				return nil, err
			}
			s.race = race
			c.monitor.SetActiveSessions(c.Sessions())
		}
		return s, nil
	}
}

// lockLoaded is lock without loading: it returns nil when raceID has no live
// session.
func (c *Coordinator) lockLoaded(raceID string) *session {
	c.mu.Lock()
	s, ok := c.sessions[raceID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.gone || s.race == nil {
		s.mu.Unlock()
		return nil
	}
	return s
}

// evict drops s from the session table. The caller holds s.mu.
func (c *Coordinator) evict(s *session) {
	s.gone = true

	c.mu.Lock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
	n := len(c.sessions)
	c.mu.Unlock()

	c.monitor.SetActiveSessions(n)
}

// Sessions counts races held in memory.
func (c *Coordinator) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Join adds player to the race roster and subscribes them to the race
// channel. The returned subscription carries every event published for the
// race from this point on.
func (c *Coordinator) Join(ctx context.Context, raceID string, player models.Player) (*Subscription, error) {
	s, err := c.lock(ctx, raceID)
	if err != nil {
		c.monitor.TrackOperation("join", "not_found")
		return nil, err
	}
	defer s.mu.Unlock()

	if !s.race.Status.Joinable() {
		if len(s.subs) == 0 {
			c.evict(s)
		}
		c.monitor.TrackOperation("join", "unavailable")
		return nil, fmt.Errorf("%w: race %s is %s", status.ErrRaceUnavailable, raceID, s.race.Status)
	}
	if s.race.HasParticipant(player.ID) {
		c.monitor.TrackOperation("join", "duplicate")
		return nil, fmt.Errorf("%w: %s in race %s", status.ErrAlreadyJoined, player.ID, raceID)
	}

	updated := s.race.Clone()
	updated.AddParticipant(player)
	if err := c.races.SaveRace(ctx, updated); err != nil {
		c.monitor.TrackOperation("join", "error")
		return nil, fmt.Errorf("%w: save roster of %s: %v", status.ErrPersistence, raceID, err)
	}
	s.race = updated

	sub := c.hub.Subscribe(raceID, player.ID)
	s.subs[player.ID] = sub

	if s.race.Status == models.RaceWaiting && len(s.race.Participants) >= c.config.AutoStartPlayers {
		if err := c.beginCountdown(ctx, s, c.config.AutoStartDelay, "auto"); err != nil {
			c.logger.Error("Failed to start countdown", "race_id", raceID, "error", err)
		}
	}

	c.publishRoster(ctx, s)
	c.monitor.TrackOperation("join", "success")
	c.logger.Info("Player joined race", "race_id", raceID, "player_id", player.ID, "players", len(s.race.Participants))

	return sub, nil
}

// Leave removes the subscription's user from the race and closes the
// subscription. A race that empties before it starts is deleted.
func (c *Coordinator) Leave(ctx context.Context, sub *Subscription) error {
	defer c.hub.Unsubscribe(sub)

	raceID, userID := sub.RaceID, sub.UserID

	s, err := c.lock(ctx, raceID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if cur, ok := s.subs[userID]; ok && cur == sub {
		delete(s.subs, userID)
	}

	if !s.race.HasParticipant(userID) {
		return fmt.Errorf("%w: %s in race %s", status.ErrNotParticipant, userID, raceID)
	}

	updated := s.race.Clone()
	updated.RemoveParticipant(userID)

	if len(updated.Participants) == 0 && updated.Status.Joinable() {
		if err := c.races.DeleteRace(ctx, raceID); err != nil && !errors.Is(err, status.ErrRaceNotFound) {
			c.logger.Error("Failed to delete empty race", "race_id", raceID, "error", err)

			// the session stays in memory as an empty Waiting race; the next
			// join saves it over whatever the store still holds
			c.sched.Cancel(raceID)
			updated.Status = models.RaceWaiting
			updated.StartAt = nil
			s.race = updated
			if saveErr := c.races.SaveRace(ctx, updated); saveErr != nil {
				c.logger.Error("Failed to reset empty race", "race_id", raceID, "error", saveErr)
			}
			c.cacheRoster(ctx, s)
			c.monitor.TrackOperation("leave", "error")
			return fmt.Errorf("%w: delete race %s: %v", status.ErrPersistence, raceID, err)
		}
		c.sched.Cancel(raceID)
		c.evict(s)
		c.dropRoster(ctx, raceID)
		c.monitor.TrackOperation("leave", "deleted")
		c.logger.Info("Deleted empty race", "race_id", raceID)
		return nil
	}

	if err := c.races.SaveRace(ctx, updated); err != nil {
		c.monitor.TrackOperation("leave", "error")
		return fmt.Errorf("%w: save roster of %s: %v", status.ErrPersistence, raceID, err)
	}
	s.race = updated

	if s.tracker != nil && !s.tracker.Finished(userID) {
		s.tracker.Forget(userID)
	}
	if s.race.Status == models.RaceRunning {
		c.maybeFinish(ctx, s)
	}

	if len(s.race.Participants) == 0 {
		// started races stay in the store for result retrieval
		c.evict(s)
		c.dropRoster(ctx, raceID)
	} else {
		c.publishRoster(ctx, s)
	}

	c.monitor.TrackOperation("leave", "success")
	c.logger.Info("Player left race", "race_id", raceID, "player_id", userID, "players", len(s.race.Participants))
	return nil
}

// RequestStart begins a short countdown if the race is still Waiting. It is a
// no-op in every other case and reports whether a countdown was started.
func (c *Coordinator) RequestStart(ctx context.Context, raceID, userID string) bool {
	s, err := c.lock(ctx, raceID)
	if err != nil {
		c.logger.Warn("Start requested for unknown race", "race_id", raceID, "error", err)
		return false
	}
	defer s.mu.Unlock()

	if s.race.Status != models.RaceWaiting || !s.race.HasParticipant(userID) {
		return false
	}
	if c.config.CreatorOnlyStart && s.race.CreatorID != userID {
		c.logger.Info("Ignoring start from non-creator", "race_id", raceID, "player_id", userID)
		return false
	}

	if err := c.beginCountdown(ctx, s, c.config.ManualStartDelay, "manual"); err != nil {
		c.logger.Error("Failed to start countdown", "race_id", raceID, "error", err)
		return false
	}

	c.publishRoster(ctx, s)
	return true
}

// ForceStart is the operator version of RequestStart. It only applies to a
// Waiting race that has connected players.
func (c *Coordinator) ForceStart(ctx context.Context, raceID string) error {
	s := c.lockLoaded(raceID)
	if s == nil {
		return fmt.Errorf("%w: race %s has no live session", status.ErrRaceNotFound, raceID)
	}
	defer s.mu.Unlock()

	if s.race.Status != models.RaceWaiting || len(s.subs) == 0 {
		return fmt.Errorf("%w: race %s is %s", status.ErrRaceUnavailable, raceID, s.race.Status)
	}

	if err := c.beginCountdown(ctx, s, c.config.ManualStartDelay, "admin"); err != nil {
		return err
	}

	c.publishRoster(ctx, s)
	return nil
}

// beginCountdown moves s to CountingDown and arms the scheduler. The caller
// holds s.mu and has checked the race is Waiting.
func (c *Coordinator) beginCountdown(ctx context.Context, s *session, delay time.Duration, trigger string) error {
	startAt := c.now().Add(delay).UTC()

	updated := s.race.Clone()
	updated.Status = models.RaceCountingDown
	updated.StartAt = &startAt
	if err := c.races.SaveRace(ctx, updated); err != nil {
		return fmt.Errorf("%w: save countdown of %s: %v", status.ErrPersistence, s.id, err)
	}
	s.race = updated

	c.armCountdown(s.id, delay)
	c.monitor.TrackCountdown(trigger)
	c.logger.Info("Race countdown started", "race_id", s.id, "trigger", trigger, "start_at", startAt)
	return nil
}

func (c *Coordinator) armCountdown(raceID string, delay time.Duration) {
	c.sched.Schedule(raceID, delay, func(token uint64) {
		c.fireCountdown(raceID, token)
	})
}

// fireCountdown runs when a countdown elapses. Sessions that were deleted or
// already started in the meantime are left alone.
func (c *Coordinator) fireCountdown(raceID string, token uint64) {
	s := c.lockLoaded(raceID)
	if s == nil {
		return
	}
	defer s.mu.Unlock()

	if !c.sched.Valid(raceID, token) || s.race.Status != models.RaceCountingDown {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	quote, err := c.quotes.RandomQuote(ctx)
	if err == nil && len(quote.Words()) == 0 {
		err = fmt.Errorf("quote %s has no words", quote.ID)
	}
	if err != nil {
		c.logger.Error("Failed to pick quote, retrying", "race_id", raceID, "retry_in", c.config.QuoteRetryDelay, "error", err)
		c.armCountdown(raceID, c.config.QuoteRetryDelay)
		return
	}

	startedAt := c.now().UTC()
	updated := s.race.Clone()
	updated.Status = models.RaceRunning
	updated.QuoteID = quote.ID
	updated.StartAt = &startedAt
	if err := c.races.SaveRace(ctx, updated); err != nil {
		c.logger.Error("Failed to start race, retrying", "race_id", raceID, "retry_in", c.config.QuoteRetryDelay, "error", err)
		c.armCountdown(raceID, c.config.QuoteRetryDelay)
		return
	}

	c.sched.Done(raceID, token)
	s.race = updated
	s.quote = quote
	s.tracker = NewTracker(quote.Words())
	for _, p := range s.race.Participants {
		s.tracker.Track(p.ID)
	}

	c.hub.Publish(raceID, models.NewRaceStart(quote))
	c.cacheRoster(ctx, s)
	c.monitor.TrackRaceStarted()
	c.logger.Info("Race started", "race_id", raceID, "quote_id", quote.ID, "players", len(s.race.Participants))
}

// SubmitProgress applies one typed word. A mismatch is reported to the sender
// as race_error and returns status.ErrOutOfOrderWord. The last word is
// recorded before anything is broadcast.
func (c *Coordinator) SubmitProgress(ctx context.Context, raceID, userID, word string) error {
	s, err := c.lock(ctx, raceID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.race.Status != models.RaceRunning || s.tracker == nil {
		return fmt.Errorf("%w: race %s is %s", status.ErrInvalidMessage, raceID, s.race.Status)
	}

	next, finished, err := s.tracker.Check(userID, word)
	if errors.Is(err, status.ErrOutOfOrderWord) {
		c.hub.Send(s.subs[userID], models.NewRaceError(models.WrongWordOrder))
		c.monitor.TrackOperation("progress", "out_of_order")
		return err
	}
	if err != nil {
		c.monitor.TrackOperation("progress", "invalid")
		return err
	}

	if !finished {
		s.tracker.Commit(userID, next)
		c.hub.Publish(raceID, models.NewProgress(userID, next))
		c.monitor.TrackOperation("progress", "success")
		return nil
	}

	elapsed := c.now().Sub(*s.race.StartAt)
	result, err := c.recorder.Record(ctx, raceID, userID, elapsed, utf8.RuneCountInString(s.quote.Text))
	if err != nil {
		c.monitor.TrackOperation("progress", "error")
		c.logger.Error("Failed to record finish", "race_id", raceID, "player_id", userID, "error", err)
		return err
	}

	s.tracker.Commit(userID, next)
	s.finishers++
	c.hub.Publish(raceID, models.NewProgress(userID, next))
	c.hub.Publish(raceID, models.NewResult(result))
	c.monitor.TrackOperation("progress", "finished")
	c.monitor.TrackFinish(result.Elapsed())
	c.logger.Info("Player finished race", "race_id", raceID, "player_id", userID, "place", result.Place, "time_racing", result.Elapsed())

	c.maybeFinish(ctx, s)
	return nil
}

// maybeFinish marks a running race Finished once somebody has finished and
// no connected racer is still typing. The caller holds s.mu.
func (c *Coordinator) maybeFinish(ctx context.Context, s *session) {
	if s.race.Status != models.RaceRunning || s.tracker == nil {
		return
	}
	if s.finishers == 0 || s.tracker.Racing() > 0 {
		return
	}

	updated := s.race.Clone()
	updated.Status = models.RaceFinished
	if err := c.races.SaveRace(ctx, updated); err != nil {
		c.logger.Error("Failed to mark race finished", "race_id", s.id, "error", err)
		return
	}
	s.race = updated
	c.dropRoster(ctx, s.id)
	c.logger.Info("Race finished", "race_id", s.id, "finishers", s.finishers)
}

// HandleMessage decodes one inbound frame from sub and applies it. Protocol
// errors are answered on the subscription; only errors the connection cannot
// recover from are returned.
func (c *Coordinator) HandleMessage(ctx context.Context, sub *Subscription, data []byte) error {
	msg, err := models.DecodeInbound(data)
	if err != nil {
		c.hub.Send(sub, models.NewFormatError())
		return nil
	}

	switch msg.Kind {
	case models.InboundStartRace:
		c.RequestStart(ctx, sub.RaceID, sub.UserID)
		return nil

	case models.InboundProgress:
		err := c.SubmitProgress(ctx, sub.RaceID, sub.UserID, msg.Word)
		switch {
		case err == nil, errors.Is(err, status.ErrOutOfOrderWord):
			return nil
		case errors.Is(err, status.ErrInvalidMessage):
			c.hub.Send(sub, models.NewFormatError())
			return nil
		default:
			return err
		}

	default:
		c.hub.Send(sub, models.NewFormatError())
		return nil
	}
}

// Snapshot returns a copy of the race as the coordinator currently sees it.
func (c *Coordinator) Snapshot(ctx context.Context, raceID string) (*models.RaceSession, error) {
	s, err := c.lock(ctx, raceID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	return s.race.Clone(), nil
}

// Cursor returns the word cursor of userID in a running race.
func (c *Coordinator) Cursor(raceID, userID string) (int, bool) {
	s := c.lockLoaded(raceID)
	if s == nil {
		return 0, false
	}
	defer s.mu.Unlock()

	if s.tracker == nil {
		return 0, false
	}
	return s.tracker.Cursor(userID)
}

// LiveRace is an operator view of a session held in memory.
type LiveRace struct {
	Race      *models.RaceSession
	Connected int
	Racing    int
	Finishers int
}

// Live lists the sessions currently held in memory, oldest first.
func (c *Coordinator) Live() []LiveRace {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	live := make([]LiveRace, 0, len(ids))
	for _, id := range ids {
		s := c.lockLoaded(id)
		if s == nil {
			continue
		}
		entry := LiveRace{
			Race:      s.race.Clone(),
			Connected: len(s.subs),
			Finishers: s.finishers,
		}
		if s.tracker != nil {
			entry.Racing = s.tracker.Racing()
		}
		s.mu.Unlock()
		live = append(live, entry)
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].Race.CreatedAt.Equal(live[j].Race.CreatedAt) {
			return live[i].Race.ID < live[j].Race.ID
		}
		return live[i].Race.CreatedAt.Before(live[j].Race.CreatedAt)
	})
	return live
}

// Shutdown stops pending countdowns. Races already running are unaffected.
func (c *Coordinator) Shutdown() {
	c.sched.Stop()
}

func (c *Coordinator) publishRoster(ctx context.Context, s *session) {
	c.hub.Publish(s.id, models.NewPlayerList(s.race.Participants, s.race.StartAt))
	c.cacheRoster(ctx, s)
}

func (c *Coordinator) cacheRoster(ctx context.Context, s *session) {
	if c.roster == nil {
		return
	}

	roster := Roster{
		Status:  s.race.Status,
		Players: append([]models.Player(nil), s.race.Participants...),
		StartAt: s.race.StartAt,
	}
	if err := c.roster.Put(ctx, s.id, roster); err != nil {
		c.logger.Warn("Failed to cache roster", "race_id", s.id, "error", err)
	}
}

func (c *Coordinator) dropRoster(ctx context.Context, raceID string) {
	if c.roster == nil {
		return
	}
	if err := c.roster.Drop(ctx, raceID); err != nil {
		c.logger.Warn("Failed to drop cached roster", "race_id", raceID, "error", err)
	}
}
