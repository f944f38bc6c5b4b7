package models

import (
	"time"
)

type RaceStatus string

const (
	RaceWaiting      RaceStatus = "waiting"
	RaceCountingDown RaceStatus = "counting_down"
	RaceRunning      RaceStatus = "running"
	RaceFinished     RaceStatus = "finished"
)

// Joinable reports whether new participants may still enter the race.
func (s RaceStatus) Joinable() bool {
	return s == RaceWaiting || s == RaceCountingDown
}

// Started reports whether a countdown or a run is already underway.
func (s RaceStatus) Started() bool {
	return s != RaceWaiting
}

type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type RaceSession struct {
	ID           string     `json:"id"`
	Status       RaceStatus `json:"status"`
	CreatorID    string     `json:"creator"`
	QuoteID      string     `json:"quote,omitempty"`
	StartAt      *time.Time `json:"start_at,omitempty"`
	Participants []Player   `json:"participants"`
	Private      bool       `json:"private"`
	PasscodeHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasParticipant reports whether userID is in the connected roster.
func (r *RaceSession) HasParticipant(userID string) bool {
	return r.participantIndex(userID) >= 0
}

// AddParticipant appends p unless a participant with the same id is present.
func (r *RaceSession) AddParticipant(p Player) bool {
	if r.HasParticipant(p.ID) {
		return false
	}
	r.Participants = append(r.Participants, p)
	return true
}

// RemoveParticipant drops userID from the roster, keeping join order.
func (r *RaceSession) RemoveParticipant(userID string) bool {
	i := r.participantIndex(userID)
	if i < 0 {
		return false
	}
	r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
	return true
}

func (r *RaceSession) participantIndex(userID string) int {
	for i, p := range r.Participants {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no mutable state with r.
func (r *RaceSession) Clone() *RaceSession {
	c := *r
	c.Participants = append([]Player(nil), r.Participants...)
	if r.StartAt != nil {
		t := *r.StartAt
		c.StartAt = &t
	}
	return &c
}

// RaceSummary is the lobby listing entry.
type RaceSummary struct {
	ID             string     `json:"id"`
	Status         RaceStatus `json:"status"`
	CreatorID      string     `json:"creator"`
	Private        bool       `json:"private"`
	AmountOfPlayer int        `json:"amount_of_players"`
	StartAt        *time.Time `json:"start_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
