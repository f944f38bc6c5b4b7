package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/status"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind InboundKind
		wantWord string
		wantErr  bool
	}{
		{"start race", `{"type":"race_action","action":"start_race"}`, InboundStartRace, "", false},
		{"progress", `{"type":"race_progress","word":"hello"}`, InboundProgress, "hello", false},
		{"progress empty word", `{"type":"race_progress","word":""}`, InboundProgress, "", false},
		{"progress missing word", `{"type":"race_progress"}`, InboundUnknown, "", true},
		{"unknown action", `{"type":"race_action","action":"stop_race"}`, InboundUnknown, "", true},
		{"missing type", `{"word":"hello"}`, InboundUnknown, "", true},
		{"unknown type", `{"type":"chat","text":"hi"}`, InboundUnknown, "", true},
		{"not json", `hello`, InboundUnknown, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, status.ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, msg.Kind)
			assert.Equal(t, tt.wantWord, msg.Word)
		})
	}
}

func TestEncodeEvent_PlayerList(t *testing.T) {
	startAt := time.Date(2026, 10, 15, 12, 0, 10, 0, time.UTC)
	players := []Player{{ID: "u1", Username: "alice"}, {ID: "u2", Username: "bob"}}

	data, err := EncodeEvent(NewPlayerList(players, &startAt))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "player_list", decoded["type"])
	assert.Equal(t, "2026-10-15T12:00:10Z", decoded["time"])
	assert.Len(t, decoded["players"], 2)
}

func TestEncodeEvent_PlayerListWithoutTime(t *testing.T) {
	data, err := EncodeEvent(NewPlayerList(nil, nil))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	_, hasTime := decoded["time"]
	assert.False(t, hasTime)
	assert.Equal(t, []any{}, decoded["players"])
}

func TestNewPlayerList_CopiesRoster(t *testing.T) {
	players := []Player{{ID: "u1", Username: "alice"}}
	ev := NewPlayerList(players, nil)
	players[0].Username = "mallory"

	assert.Equal(t, "alice", ev.Players[0].Username)
}

func TestNewRaceStart_NilCategories(t *testing.T) {
	ev := NewRaceStart(&Quote{Text: "a b", Author: "x"})

	data, err := EncodeEvent(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"race_start","quote":"a b","author":"x","categories":[]}`, string(data))
}

func TestNewResult(t *testing.T) {
	ev := NewResult(&RaceResult{PlayerID: "u1", TimeRacingMs: 12500, Place: 2, AverageSpeed: 4.2})

	assert.Equal(t, EventRaceResult, ev.EventType())
	assert.Equal(t, "12.5s", ev.TimeRacing)
	assert.Equal(t, 2, ev.Place)
}

func TestErrorEvents(t *testing.T) {
	assert.Equal(t, ErrorEvent{Type: "error", Text: "Wrong message format"}, NewFormatError())
	assert.Equal(t, "race_error", NewRaceError(WrongWordOrder).EventType())
}
