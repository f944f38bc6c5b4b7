package services

import (
	"context"
	"fmt"
	"log/slog"

	"typerace/internal/status"
	"typerace/models"
	"typerace/security"
)

// LobbyService serves the request/response side of races: creating lobbies,
// listing them and reading results.
type LobbyService struct {
	races   RaceStore
	results ResultStore
	quotes  QuoteProvider
	roster  RosterReader
	logger  *slog.Logger
}

func NewLobbyService(races RaceStore, results ResultStore, quotes QuoteProvider, roster RosterReader, logger *slog.Logger) *LobbyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LobbyService{
		races:   races,
		results: results,
		quotes:  quotes,
		roster:  roster,
		logger:  logger,
	}
}

// CreateRace opens a Waiting race owned by creatorID. Private races get a
// passcode which is returned once and stored only as a hash.
func (s *LobbyService) CreateRace(ctx context.Context, creatorID string, private bool) (*models.RaceSession, string, error) {
	var code, hash string
	if private {
		var err error
		code, hash, err = security.NewPasscode()
		if err != nil {
			return nil, "", err
		}
	}

	race, err := s.races.CreateRace(ctx, creatorID, private, hash)
	if err != nil {
		return nil, "", fmt.Errorf("create race: %w", err)
	}

	s.logger.Info("Race created", "race_id", race.ID, "creator", creatorID, "private", private)
	return race, code, nil
}

// ListRaces returns joinable races. Player counts come from the roster cache
// when it has an entry, since it tracks the coordinator more closely.
func (s *LobbyService) ListRaces(ctx context.Context) ([]models.RaceSummary, error) {
	races, err := s.races.ListJoinableRaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list races: %w", err)
	}

	summaries := make([]models.RaceSummary, 0, len(races))
	for _, race := range races {
		summary := models.RaceSummary{
			ID:             race.ID,
			Status:         race.Status,
			CreatorID:      race.CreatorID,
			Private:        race.Private,
			AmountOfPlayer: len(race.Participants),
			StartAt:        race.StartAt,
			CreatedAt:      race.CreatedAt,
		}

		if s.roster != nil {
			cached, err := s.roster.Get(ctx, race.ID)
			if err != nil {
				s.logger.Warn("Roster cache read failed", "race_id", race.ID, "error", err)
			} else if cached != nil {
				if !cached.Status.Joinable() {
					continue
				}
				summary.Status = cached.Status
				summary.AmountOfPlayer = len(cached.Players)
				summary.StartAt = cached.StartAt
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// RaceDetail returns a race with its results ordered by place.
func (s *LobbyService) RaceDetail(ctx context.Context, raceID string) (*models.RaceSession, []models.RaceResult, error) {
	race, err := s.races.GetRace(ctx, raceID)
	if err != nil {
		return nil, nil, err
	}

	results, err := s.results.ListResults(ctx, raceID)
	if err != nil {
		return nil, nil, fmt.Errorf("list results of %s: %w", raceID, err)
	}

	return race, results, nil
}

// CheckAccess verifies that a connection may join raceID: the race exists,
// still accepts players and, when private, the passcode matches.
func (s *LobbyService) CheckAccess(ctx context.Context, raceID, passcode string) error {
	race, err := s.races.GetRace(ctx, raceID)
	if err != nil {
		return err
	}
	if !race.Status.Joinable() {
		return fmt.Errorf("%w: race %s is %s", status.ErrRaceUnavailable, raceID, race.Status)
	}
	if race.Private {
		return security.CheckPasscode(race.PasscodeHash, passcode)
	}
	return nil
}

func (s *LobbyService) RandomQuote(ctx context.Context) (*models.Quote, error) {
	return s.quotes.RandomQuote(ctx)
}

// PlayerStats aggregates every recorded result of playerID.
func (s *LobbyService) PlayerStats(ctx context.Context, playerID string) (*models.PlayerStats, error) {
	results, err := s.results.PlayerResults(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("results of %s: %w", playerID, err)
	}

	return BuildStats(playerID, results), nil
}

func BuildStats(playerID string, results []models.RaceResult) *models.PlayerStats {
	stats := &models.PlayerStats{
		PlayerID: playerID,
		Results:  results,
	}
	if stats.Results == nil {
		stats.Results = []models.RaceResult{}
	}

	var speedSum float64
	for _, r := range results {
		if !r.Finished {
			continue
		}
		stats.RacesFinished++
		speedSum += r.AverageSpeed
		if stats.BestPlace == 0 || r.Place < stats.BestPlace {
			stats.BestPlace = r.Place
		}
	}
	if stats.RacesFinished > 0 {
		stats.AverageSpeed = speedSum / float64(stats.RacesFinished)
	}

	return stats
}
