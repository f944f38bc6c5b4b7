package models

import (
	"time"

	"github.com/segmentio/encoding/json"

	"typerace/internal/status"
)

const (
	MessageRaceAction   = "race_action"
	MessageRaceProgress = "race_progress"

	ActionStartRace = "start_race"

	EventPlayerList   = "player_list"
	EventRaceStart    = "race_start"
	EventRaceProgress = "race_progress"
	EventRaceResult   = "race_result"
	EventRaceError    = "race_error"
	EventError        = "error"

	WrongMessageFormat = "Wrong message format"
	WrongWordOrder     = "Word typed out of order"
)

type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundStartRace
	InboundProgress
)

// Inbound is a decoded client message. Kind selects which fields are meaningful.
type Inbound struct {
	Kind InboundKind
	Word string
}

type inboundEnvelope struct {
	Type   string  `json:"type"`
	Action string  `json:"action"`
	Word   *string `json:"word"`
}

// DecodeInbound parses a client frame. Every frame that is not one of the known
// shapes yields status.ErrInvalidMessage.
func DecodeInbound(data []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, status.ErrInvalidMessage
	}

	switch env.Type {
	case MessageRaceAction:
		if env.Action != ActionStartRace {
			return Inbound{}, status.ErrInvalidMessage
		}
		return Inbound{Kind: InboundStartRace}, nil
	case MessageRaceProgress:
		if env.Word == nil {
			return Inbound{}, status.ErrInvalidMessage
		}
		return Inbound{Kind: InboundProgress, Word: *env.Word}, nil
	default:
		return Inbound{}, status.ErrInvalidMessage
	}
}

// Event is an outbound message delivered through a race channel.
type Event interface {
	EventType() string
}

type PlayerListEvent struct {
	Type    string     `json:"type"`
	Players []Player   `json:"players"`
	Time    *time.Time `json:"time,omitempty"`
}

type RaceStartEvent struct {
	Type       string   `json:"type"`
	Quote      string   `json:"quote"`
	Author     string   `json:"author"`
	Categories []string `json:"categories"`
}

type ProgressEvent struct {
	Type      string `json:"type"`
	PlayerID  string `json:"player_id"`
	WordIndex int    `json:"word_index"`
}

type ResultEvent struct {
	Type         string  `json:"type"`
	PlayerID     string  `json:"player_id"`
	TimeRacing   string  `json:"time_racing"`
	Place        int     `json:"place"`
	AverageSpeed float64 `json:"average_speed"`
}

type ErrorEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (e PlayerListEvent) EventType() string { return e.Type }
func (e RaceStartEvent) EventType() string  { return e.Type }
func (e ProgressEvent) EventType() string   { return e.Type }
func (e ResultEvent) EventType() string     { return e.Type }
func (e ErrorEvent) EventType() string      { return e.Type }

func NewPlayerList(players []Player, startAt *time.Time) PlayerListEvent {
	list := make([]Player, len(players))
	copy(list, players)
	var at *time.Time
	if startAt != nil {
		t := startAt.UTC()
		at = &t
	}
	return PlayerListEvent{Type: EventPlayerList, Players: list, Time: at}
}

func NewRaceStart(q *Quote) RaceStartEvent {
	categories := q.Categories
	if categories == nil {
		categories = []string{}
	}
	return RaceStartEvent{Type: EventRaceStart, Quote: q.Text, Author: q.Author, Categories: categories}
}

func NewProgress(playerID string, wordIndex int) ProgressEvent {
	return ProgressEvent{Type: EventRaceProgress, PlayerID: playerID, WordIndex: wordIndex}
}

func NewResult(r *RaceResult) ResultEvent {
	return ResultEvent{
		Type:         EventRaceResult,
		PlayerID:     r.PlayerID,
		TimeRacing:   r.Elapsed().String(),
		Place:        r.Place,
		AverageSpeed: r.AverageSpeed,
	}
}

func NewRaceError(text string) ErrorEvent {
	return ErrorEvent{Type: EventRaceError, Text: text}
}

func NewFormatError() ErrorEvent {
	return ErrorEvent{Type: EventError, Text: WrongMessageFormat}
}

// EncodeEvent serializes an outbound event for the wire.
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
