package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/segmentio/encoding/json"

	"typerace/internal/status"
	"typerace/models"
)

const (
	CollectionQuotes  = "quotes"
	CollectionRaces   = "races"
	CollectionResults = "race_results"
)

// PocketBaseStore implements RaceStore, ResultStore and QuoteProvider on top
// of the PocketBase collections created by the migrations package.
type PocketBaseStore struct {
	app core.App
}

func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

func (s *PocketBaseStore) CreateRace(ctx context.Context, creatorID string, private bool, passcodeHash string) (*models.RaceSession, error) {
	collection, err := s.app.FindCollectionByNameOrId(CollectionRaces)
	if err != nil {
		return nil, err
	}

	record := core.NewRecord(collection)
	record.Set("status", string(models.RaceWaiting))
	record.Set("creator", creatorID)
	record.Set("participants", []models.Player{})
	record.Set("private", private)
	record.Set("passcode_hash", passcodeHash)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, err
	}

	return raceFromRecord(record)
}

func (s *PocketBaseStore) findRace(raceID string) (*core.Record, error) {
	record, err := s.app.FindRecordById(CollectionRaces, raceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", status.ErrRaceNotFound, raceID)
	}
	return record, err
}

func (s *PocketBaseStore) GetRace(_ context.Context, raceID string) (*models.RaceSession, error) {
	record, err := s.findRace(raceID)
	if err != nil {
		return nil, err
	}
	return raceFromRecord(record)
}

// SaveRace writes the mutable fields of race. Identity, creator and passcode
// are fixed at creation.
func (s *PocketBaseStore) SaveRace(ctx context.Context, race *models.RaceSession) error {
	record, err := s.findRace(race.ID)
	if err != nil {
		return err
	}

	record.Set("status", string(race.Status))
	record.Set("quote", race.QuoteID)
	record.Set("participants", race.Participants)
	if race.StartAt != nil {
		record.Set("start_at", race.StartAt.UTC())
	} else {
		record.Set("start_at", "")
	}

	return s.app.SaveWithContext(ctx, record)
}

func (s *PocketBaseStore) DeleteRace(ctx context.Context, raceID string) error {
	record, err := s.findRace(raceID)
	if err != nil {
		return err
	}
	return s.app.DeleteWithContext(ctx, record)
}

func (s *PocketBaseStore) ListJoinableRaces(_ context.Context) ([]*models.RaceSession, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionRaces,
		"status = {:waiting} || status = {:countingDown}",
		"-created",
		100,
		0,
		dbx.Params{
			"waiting":      string(models.RaceWaiting),
			"countingDown": string(models.RaceCountingDown),
		},
	)
	if err != nil {
		return nil, err
	}

	races := make([]*models.RaceSession, 0, len(records))
	for _, record := range records {
		race, err := raceFromRecord(record)
		if err != nil {
			return nil, err
		}
		races = append(races, race)
	}
	return races, nil
}

// AppendResult inserts the result and its place in one transaction. The
// unique (race, place) and (race, player) indexes reject a concurrent writer
// that computed the same place, which the recorder then retries.
func (s *PocketBaseStore) AppendResult(ctx context.Context, result *models.RaceResult) (*models.RaceResult, error) {
	var saved *models.RaceResult

	err := s.app.RunInTransaction(func(txApp core.App) error {
		existing, err := txApp.FindFirstRecordByFilter(
			CollectionResults,
			"race = {:race} && player = {:player}",
			dbx.Params{"race": result.RaceID, "player": result.PlayerID},
		)
		if err == nil {
			saved = resultFromRecord(existing)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var finishers int
		err = txApp.DB().
			Select("count(*)").
			From(CollectionResults).
			Where(dbx.HashExp{"race": result.RaceID}).
			Row(&finishers)
		if err != nil {
			return err
		}

		collection, err := txApp.FindCollectionByNameOrId(CollectionResults)
		if err != nil {
			return err
		}

		record := core.NewRecord(collection)
		record.Set("race", result.RaceID)
		record.Set("player", result.PlayerID)
		record.Set("finished", result.Finished)
		record.Set("time_racing_ms", result.TimeRacingMs)
		record.Set("place", finishers+1)
		record.Set("average_speed", result.AverageSpeed)

		if err := txApp.SaveWithContext(ctx, record); err != nil {
			return err
		}

		saved = resultFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func (s *PocketBaseStore) ListResults(_ context.Context, raceID string) ([]models.RaceResult, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionResults,
		"race = {:race}",
		"place",
		-1,
		0,
		dbx.Params{"race": raceID},
	)
	if err != nil {
		return nil, err
	}

	results := make([]models.RaceResult, 0, len(records))
	for _, record := range records {
		results = append(results, *resultFromRecord(record))
	}
	return results, nil
}

type resultRow struct {
	ID           string         `db:"id"`
	RaceID       string         `db:"race"`
	PlayerID     string         `db:"player"`
	Finished     bool           `db:"finished"`
	TimeRacingMs int64          `db:"time_racing_ms"`
	Place        int            `db:"place"`
	AverageSpeed float64        `db:"average_speed"`
	Created      types.DateTime `db:"created"`
}

func (s *PocketBaseStore) PlayerResults(_ context.Context, playerID string) ([]models.RaceResult, error) {
	rows := []resultRow{}
	err := s.app.DB().
		Select("id", "race", "player", "finished", "time_racing_ms", "place", "average_speed", "created").
		From(CollectionResults).
		Where(dbx.HashExp{"player": playerID}).
		OrderBy("created DESC").
		All(&rows)
	if err != nil {
		return nil, err
	}

	results := make([]models.RaceResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, models.RaceResult{
			ID:           row.ID,
			RaceID:       row.RaceID,
			PlayerID:     row.PlayerID,
			Finished:     row.Finished,
			TimeRacingMs: row.TimeRacingMs,
			Place:        row.Place,
			AverageSpeed: row.AverageSpeed,
			CreatedAt:    row.Created.Time(),
		})
	}
	return results, nil
}

func (s *PocketBaseStore) RandomQuote(_ context.Context) (*models.Quote, error) {
	records, err := s.app.FindRecordsByFilter(CollectionQuotes, "", "@random", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, status.ErrQuoteNotFound
	}
	return quoteFromRecord(records[0])
}

func (s *PocketBaseStore) GetQuote(_ context.Context, quoteID string) (*models.Quote, error) {
	record, err := s.app.FindRecordById(CollectionQuotes, quoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", status.ErrQuoteNotFound, quoteID)
	}
	if err != nil {
		return nil, err
	}
	return quoteFromRecord(record)
}

// ImportQuotes upserts the catalogue. Entries with the same text and author
// are one quote whose categories are merged.
func (s *PocketBaseStore) ImportQuotes(ctx context.Context, entries []SeedQuote) (created, updated int, err error) {
	grouped := GroupSeedQuotes(entries)

	collection, err := s.app.FindCollectionByNameOrId(CollectionQuotes)
	if err != nil {
		return 0, 0, err
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		for _, q := range grouped {
			record, err := txApp.FindFirstRecordByFilter(
				CollectionQuotes,
				"quote = {:quote} && author = {:author}",
				dbx.Params{"quote": q.Text, "author": q.Author},
			)
			switch {
			case err == nil:
				var existing []string
				if err := unmarshalJSONField(record, "categories", &existing); err != nil {
					return err
				}
				record.Set("categories", MergeCategories(existing, q.Categories))
				updated++
			case errors.Is(err, sql.ErrNoRows):
				record = core.NewRecord(collection)
				record.Set("quote", q.Text)
				record.Set("author", q.Author)
				record.Set("categories", q.Categories)
				created++
			default:
				return err
			}

			if err := txApp.SaveWithContext(ctx, record); err != nil {
				return fmt.Errorf("save quote by %q: %w", q.Author, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return created, updated, nil
}

// GroupSeedQuotes collapses entries with the same text and author, keeping
// first-seen order.
func GroupSeedQuotes(entries []SeedQuote) []*models.Quote {
	type key struct{ text, author string }

	index := make(map[key]*models.Quote)
	var out []*models.Quote
	for _, e := range entries {
		text := strings.TrimSpace(e.Quote)
		if text == "" {
			continue
		}
		k := key{text: text, author: strings.TrimSpace(e.Author)}

		q, ok := index[k]
		if !ok {
			q = &models.Quote{Text: k.text, Author: k.author, Categories: []string{}}
			index[k] = q
			out = append(out, q)
		}
		q.Categories = MergeCategories(q.Categories, SplitCategories(e.Category))
	}
	return out
}

// SplitCategories parses a comma separated category list.
func SplitCategories(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// MergeCategories appends the categories of b missing from a.
func MergeCategories(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range append(append([]string(nil), a...), b...) {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func raceFromRecord(record *core.Record) (*models.RaceSession, error) {
	race := &models.RaceSession{
		ID:           record.Id,
		Status:       models.RaceStatus(record.GetString("status")),
		CreatorID:    record.GetString("creator"),
		QuoteID:      record.GetString("quote"),
		Private:      record.GetBool("private"),
		PasscodeHash: record.GetString("passcode_hash"),
		CreatedAt:    record.GetDateTime("created").Time(),
	}

	if at := record.GetDateTime("start_at"); !at.IsZero() {
		t := at.Time()
		race.StartAt = &t
	}

	if err := unmarshalJSONField(record, "participants", &race.Participants); err != nil {
		return nil, fmt.Errorf("race %s participants: %w", record.Id, err)
	}
	if race.Participants == nil {
		race.Participants = []models.Player{}
	}

	return race, nil
}

func resultFromRecord(record *core.Record) *models.RaceResult {
	return &models.RaceResult{
		ID:           record.Id,
		RaceID:       record.GetString("race"),
		PlayerID:     record.GetString("player"),
		Finished:     record.GetBool("finished"),
		TimeRacingMs: int64(record.GetInt("time_racing_ms")),
		Place:        record.GetInt("place"),
		AverageSpeed: record.GetFloat("average_speed"),
		CreatedAt:    createdAt(record),
	}
}

func quoteFromRecord(record *core.Record) (*models.Quote, error) {
	q := &models.Quote{
		ID:     record.Id,
		Text:   record.GetString("quote"),
		Author: record.GetString("author"),
	}
	if err := unmarshalJSONField(record, "categories", &q.Categories); err != nil {
		return nil, fmt.Errorf("quote %s categories: %w", record.Id, err)
	}
	if q.Categories == nil {
		q.Categories = []string{}
	}
	return q, nil
}

func createdAt(record *core.Record) time.Time {
	if dt := record.GetDateTime("created"); !dt.IsZero() {
		return dt.Time()
	}
	return time.Now().UTC()
}

// unmarshalJSONField decodes a JSON field, treating an unset value as empty.
func unmarshalJSONField(record *core.Record, field string, dst any) error {
	var raw []byte
	switch v := record.Get(field).(type) {
	case nil:
		return nil
	case types.JSONRaw:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = b
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
