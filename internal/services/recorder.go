package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"typerace/internal/status"
	"typerace/models"
)

// minElapsed keeps the speed division finite for an instant finish.
const minElapsed = time.Millisecond

// Recorder writes finish results, retrying transient store failures.
type Recorder struct {
	results ResultStore
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

func NewRecorder(results ResultStore, retries int, logger *slog.Logger) *Recorder {
	if retries < 1 {
		retries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		results: results,
		retries: retries,
		backoff: 50 * time.Millisecond,
		logger:  logger,
	}
}

// RacingTime rounds elapsed to whole milliseconds, never below one.
func RacingTime(elapsed time.Duration) time.Duration {
	elapsed = elapsed.Round(time.Millisecond)
	if elapsed < minElapsed {
		return minElapsed
	}
	return elapsed
}

// AverageSpeed is characters per second over the racing time.
func AverageSpeed(quoteLength int, racing time.Duration) float64 {
	ms := RacingTime(racing).Milliseconds()
	speed, _ := decimal.NewFromInt(int64(quoteLength)).
		Mul(decimal.NewFromInt(1000)).
		Div(decimal.NewFromInt(ms)).
		Float64()
	return speed
}

// Record stores the finish of playerID. The place is assigned by the store.
// Failures surface as status.ErrPersistence once retries are exhausted.
func (r *Recorder) Record(ctx context.Context, raceID, playerID string, elapsed time.Duration, quoteLength int) (*models.RaceResult, error) {
	racing := RacingTime(elapsed)
	result := &models.RaceResult{
		RaceID:       raceID,
		PlayerID:     playerID,
		Finished:     true,
		TimeRacingMs: racing.Milliseconds(),
		AverageSpeed: AverageSpeed(quoteLength, racing),
	}

	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		saved, err := r.results.AppendResult(ctx, result)
		if err == nil {
			return saved, nil
		}
		lastErr = err

		if errors.Is(err, status.ErrRaceNotFound) || ctx.Err() != nil {
			break
		}

		r.logger.Warn("Failed to record race result",
			"race_id", raceID, "player_id", playerID, "attempt", attempt, "error", err)

		if attempt < r.retries {
			select {
			case <-time.After(r.backoff * time.Duration(attempt)):
			case <-ctx.Done():
			}
		}
	}

	return nil, fmt.Errorf("%w: record result for %s in %s: %v", status.ErrPersistence, playerID, raceID, lastErr)
}
