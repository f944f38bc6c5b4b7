package models

import (
	"time"
)

type RaceResult struct {
	ID           string    `json:"id"`
	RaceID       string    `json:"race"`
	PlayerID     string    `json:"player"`
	Finished     bool      `json:"finished"`
	TimeRacingMs int64     `json:"time_racing_ms"`
	Place        int       `json:"place"`
	AverageSpeed float64   `json:"average_speed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Elapsed is the time between the race going live and this player finishing.
func (r *RaceResult) Elapsed() time.Duration {
	return time.Duration(r.TimeRacingMs) * time.Millisecond
}

type PlayerStats struct {
	PlayerID      string       `json:"player"`
	RacesFinished int          `json:"races_finished"`
	BestPlace     int          `json:"best_place"`
	AverageSpeed  float64      `json:"average_speed"`
	Results       []RaceResult `json:"results"`
}
