package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/status"
	"typerace/models"
)

type stubRoster map[string]*Roster

func (s stubRoster) Get(_ context.Context, raceID string) (*Roster, error) {
	if raceID == "broken" {
		return nil, errors.New("redis down")
	}
	return s[raceID], nil
}

func TestLobbyService_CreateRace(t *testing.T) {
	store := NewMemoryStore()
	lobby := NewLobbyService(store, store, store, nil, discardLogger())
	ctx := context.Background()

	race, code, err := lobby.CreateRace(ctx, "u1", false)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Equal(t, models.RaceWaiting, race.Status)
	assert.Equal(t, "u1", race.CreatorID)
	assert.Empty(t, race.Participants)
	assert.Nil(t, race.StartAt)
	assert.Empty(t, race.QuoteID)
	assert.NoError(t, lobby.CheckAccess(ctx, race.ID, ""))

	private, code, err := lobby.CreateRace(ctx, "u1", true)
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9]{4}$", code)
	assert.True(t, private.Private)
	assert.NotEqual(t, code, private.PasscodeHash)

	assert.NoError(t, lobby.CheckAccess(ctx, private.ID, code))
	assert.ErrorIs(t, lobby.CheckAccess(ctx, private.ID, "nope"), status.ErrWrongPasscode)
}

func TestLobbyService_CheckAccess(t *testing.T) {
	store := NewMemoryStore()
	lobby := NewLobbyService(store, store, store, nil, discardLogger())
	ctx := context.Background()

	assert.ErrorIs(t, lobby.CheckAccess(ctx, "missing", ""), status.ErrRaceNotFound)

	race, _, err := lobby.CreateRace(ctx, "u1", false)
	require.NoError(t, err)
	race.Status = models.RaceRunning
	race.QuoteID = "q1"
	now := time.Now()
	race.StartAt = &now
	require.NoError(t, store.SaveRace(ctx, race))

	assert.ErrorIs(t, lobby.CheckAccess(ctx, race.ID, ""), status.ErrRaceUnavailable)
}

func TestLobbyService_ListRacesPrefersCachedRoster(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stale, err := store.CreateRace(ctx, "u1", false, "")
	require.NoError(t, err)
	started, err := store.CreateRace(ctx, "u2", false, "")
	require.NoError(t, err)
	uncached, err := store.CreateRace(ctx, "u3", true, "hash")
	require.NoError(t, err)

	startAt := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	roster := stubRoster{
		stale.ID: {
			Status:  models.RaceCountingDown,
			Players: []models.Player{player("a"), player("b"), player("c")},
			StartAt: &startAt,
		},
		started.ID: {Status: models.RaceRunning, Players: []models.Player{player("d")}},
	}
	lobby := NewLobbyService(store, store, store, roster, discardLogger())

	summaries, err := lobby.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]models.RaceSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}

	assert.Equal(t, 3, byID[stale.ID].AmountOfPlayer)
	assert.Equal(t, models.RaceCountingDown, byID[stale.ID].Status)
	assert.Equal(t, &startAt, byID[stale.ID].StartAt)

	assert.Equal(t, 0, byID[uncached.ID].AmountOfPlayer)
	assert.True(t, byID[uncached.ID].Private)
	_, listed := byID[started.ID]
	assert.False(t, listed, "a race the cache knows has started is not joinable")
}

func TestLobbyService_ListRacesSurvivesCacheErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	race, err := store.CreateRace(ctx, "u1", false, "")
	require.NoError(t, err)
	race.Participants = []models.Player{player("a")}
	require.NoError(t, store.SaveRace(ctx, race))
	store.races["broken"] = race.Clone()
	store.races["broken"].ID = "broken"

	lobby := NewLobbyService(store, store, store, stubRoster{}, discardLogger())

	summaries, err := lobby.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, 1, s.AmountOfPlayer)
	}
}

func TestLobbyService_RaceDetail(t *testing.T) {
	store := NewMemoryStore()
	lobby := NewLobbyService(store, store, store, nil, discardLogger())
	ctx := context.Background()

	race, _, err := lobby.CreateRace(ctx, "u1", false)
	require.NoError(t, err)
	_, err = store.AppendResult(ctx, &models.RaceResult{RaceID: race.ID, PlayerID: "a", Finished: true, TimeRacingMs: 9000})
	require.NoError(t, err)
	_, err = store.AppendResult(ctx, &models.RaceResult{RaceID: race.ID, PlayerID: "b", Finished: true, TimeRacingMs: 9500})
	require.NoError(t, err)

	got, results, err := lobby.RaceDetail(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, race.ID, got.ID)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Place)
	assert.Equal(t, "a", results[0].PlayerID)
	assert.Equal(t, 2, results[1].Place)

	_, _, err = lobby.RaceDetail(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrRaceNotFound)
}

func TestLobbyService_RandomQuote(t *testing.T) {
	store := NewMemoryStore()
	lobby := NewLobbyService(store, store, store, nil, discardLogger())

	_, err := lobby.RandomQuote(context.Background())
	assert.ErrorIs(t, err, status.ErrQuoteNotFound)

	store.AddQuote(&models.Quote{Text: "hello world", Author: "me", Categories: []string{}})
	q, err := lobby.RandomQuote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello world", q.Text)
	assert.NotEmpty(t, q.ID)
}

func TestBuildStats(t *testing.T) {
	results := []models.RaceResult{
		{RaceID: "r1", Finished: true, Place: 2, AverageSpeed: 10},
		{RaceID: "r2", Finished: true, Place: 1, AverageSpeed: 20},
		{RaceID: "r3", Finished: false, Place: 0, AverageSpeed: 0},
	}

	stats := BuildStats("u1", results)

	assert.Equal(t, "u1", stats.PlayerID)
	assert.Equal(t, 2, stats.RacesFinished)
	assert.Equal(t, 1, stats.BestPlace)
	assert.Equal(t, 15.0, stats.AverageSpeed)
	assert.Len(t, stats.Results, 3)

	empty := BuildStats("u2", nil)
	assert.Equal(t, 0, empty.RacesFinished)
	assert.NotNil(t, empty.Results)
}

func TestLobbyService_PlayerStats(t *testing.T) {
	store := NewMemoryStore()
	lobby := NewLobbyService(store, store, store, nil, discardLogger())
	ctx := context.Background()

	_, err := store.AppendResult(ctx, &models.RaceResult{RaceID: "r1", PlayerID: "u1", Finished: true, AverageSpeed: 8})
	require.NoError(t, err)
	_, err = store.AppendResult(ctx, &models.RaceResult{RaceID: "r2", PlayerID: "other", Finished: true})
	require.NoError(t, err)

	stats, err := lobby.PlayerStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RacesFinished)
	assert.Equal(t, 1, stats.BestPlace)
	assert.Equal(t, 8.0, stats.AverageSpeed)
}
