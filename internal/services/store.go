package services

import (
	"context"

	"typerace/models"
)

// RaceStore persists race sessions. GetRace returns status.ErrRaceNotFound
// for unknown ids.
type RaceStore interface {
	CreateRace(ctx context.Context, creatorID string, private bool, passcodeHash string) (*models.RaceSession, error)
	GetRace(ctx context.Context, raceID string) (*models.RaceSession, error)
	SaveRace(ctx context.Context, race *models.RaceSession) error
	DeleteRace(ctx context.Context, raceID string) error
	ListJoinableRaces(ctx context.Context) ([]*models.RaceSession, error)
}

// ResultStore persists finish results.
//
// AppendResult assigns Place as one more than the number of results already
// recorded for the race, atomically with the insert. Appending twice for the
// same race and player returns the first result unchanged.
type ResultStore interface {
	AppendResult(ctx context.Context, result *models.RaceResult) (*models.RaceResult, error)
	ListResults(ctx context.Context, raceID string) ([]models.RaceResult, error)
	PlayerResults(ctx context.Context, playerID string) ([]models.RaceResult, error)
}

// QuoteProvider hands out quotes. RandomQuote returns status.ErrQuoteNotFound
// when the catalogue is empty.
type QuoteProvider interface {
	RandomQuote(ctx context.Context) (*models.Quote, error)
	GetQuote(ctx context.Context, quoteID string) (*models.Quote, error)
}

// SeedQuote is one entry of the quotes.json catalogue.
type SeedQuote struct {
	Quote    string `json:"Quote"`
	Author   string `json:"Author"`
	Category string `json:"Category"`
}
