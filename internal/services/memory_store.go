package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"typerace/internal/status"
	"typerace/models"
)

// MemoryStore keeps races, results and quotes in process memory. It backs the
// coordinator in tests and in local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	races   map[string]*models.RaceSession
	results map[string][]models.RaceResult
	quotes  []*models.Quote
	now     func() time.Time

	// FailSaves makes the next n SaveRace calls fail.
	FailSaves int
	// FailDeletes makes the next n DeleteRace calls fail.
	FailDeletes int
	// FailResults makes the next n AppendResult calls fail.
	FailResults int
}

func NewMemoryStore(quotes ...*models.Quote) *MemoryStore {
	return &MemoryStore{
		races:   make(map[string]*models.RaceSession),
		results: make(map[string][]models.RaceResult),
		quotes:  quotes,
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateRace(_ context.Context, creatorID string, private bool, passcodeHash string) (*models.RaceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	race := &models.RaceSession{
		ID:           uuid.NewString(),
		Status:       models.RaceWaiting,
		CreatorID:    creatorID,
		Participants: []models.Player{},
		Private:      private,
		PasscodeHash: passcodeHash,
		CreatedAt:    s.now().UTC(),
	}
	s.races[race.ID] = race
	return race.Clone(), nil
}

func (s *MemoryStore) GetRace(_ context.Context, raceID string) (*models.RaceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	race, ok := s.races[raceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", status.ErrRaceNotFound, raceID)
	}
	return race.Clone(), nil
}

func (s *MemoryStore) SaveRace(_ context.Context, race *models.RaceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaves > 0 {
		s.FailSaves--
		return fmt.Errorf("memory store: save race %s failed", race.ID)
	}
	if _, ok := s.races[race.ID]; !ok {
		return fmt.Errorf("%w: %s", status.ErrRaceNotFound, race.ID)
	}
	s.races[race.ID] = race.Clone()
	return nil
}

func (s *MemoryStore) DeleteRace(_ context.Context, raceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDeletes > 0 {
		s.FailDeletes--
		return fmt.Errorf("memory store: delete race %s failed", raceID)
	}
	if _, ok := s.races[raceID]; !ok {
		return fmt.Errorf("%w: %s", status.ErrRaceNotFound, raceID)
	}
	delete(s.races, raceID)
	return nil
}

func (s *MemoryStore) ListJoinableRaces(_ context.Context) ([]*models.RaceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var races []*models.RaceSession
	for _, race := range s.races {
		if race.Status.Joinable() {
			races = append(races, race.Clone())
		}
	}
	sort.Slice(races, func(i, j int) bool {
		return races[i].CreatedAt.After(races[j].CreatedAt)
	})
	return races, nil
}

func (s *MemoryStore) AppendResult(_ context.Context, result *models.RaceResult) (*models.RaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailResults > 0 {
		s.FailResults--
		return nil, fmt.Errorf("memory store: append result for %s failed", result.PlayerID)
	}

	for _, existing := range s.results[result.RaceID] {
		if existing.PlayerID == result.PlayerID {
			r := existing
			return &r, nil
		}
	}

	saved := *result
	saved.ID = uuid.NewString()
	saved.Place = len(s.results[result.RaceID]) + 1
	saved.CreatedAt = s.now().UTC()
	s.results[result.RaceID] = append(s.results[result.RaceID], saved)
	return &saved, nil
}

func (s *MemoryStore) ListResults(_ context.Context, raceID string) ([]models.RaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.RaceResult(nil), s.results[raceID]...), nil
}

func (s *MemoryStore) PlayerResults(_ context.Context, playerID string) ([]models.RaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RaceResult
	for _, results := range s.results {
		for _, r := range results {
			if r.PlayerID == playerID {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) AddQuote(q *models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	s.quotes = append(s.quotes, q)
}

func (s *MemoryStore) RandomQuote(_ context.Context) (*models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.quotes) == 0 {
		return nil, status.ErrQuoteNotFound
	}
	q := *s.quotes[rand.IntN(len(s.quotes))]
	return &q, nil
}

func (s *MemoryStore) GetQuote(_ context.Context, quoteID string) (*models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.quotes {
		if q.ID == quoteID {
			c := *q
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", status.ErrQuoteNotFound, quoteID)
}
