package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"typerace/internal/services"
	"typerace/models"
)

type LobbyHandler struct {
	lobby *services.LobbyService
}

func NewLobbyHandler(lobby *services.LobbyService) *LobbyHandler {
	return &LobbyHandler{lobby: lobby}
}

type createRaceRequest struct {
	Private bool `json:"private"`
}

type raceResponse struct {
	ID           string            `json:"id"`
	Status       models.RaceStatus `json:"status"`
	CreatorID    string            `json:"creator"`
	QuoteID      string            `json:"quote,omitempty"`
	StartAt      *time.Time        `json:"start_at,omitempty"`
	Participants []models.Player   `json:"participants"`
	Private      bool              `json:"private"`
	CreatedAt    time.Time         `json:"created_at"`
	Passcode     string            `json:"passcode,omitempty"`
}

func newRaceResponse(race *models.RaceSession) raceResponse {
	return raceResponse{
		ID:           race.ID,
		Status:       race.Status,
		CreatorID:    race.CreatorID,
		QuoteID:      race.QuoteID,
		StartAt:      race.StartAt,
		Participants: race.Participants,
		Private:      race.Private,
		CreatedAt:    race.CreatedAt,
	}
}

// CreateRace - open a new lobby owned by the caller
func (h *LobbyHandler) CreateRace(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req createRaceRequest
	if e.Request.ContentLength != 0 {
		if err := e.BindBody(&req); err != nil {
			return apis.NewBadRequestError("Invalid request", err)
		}
	}

	race, passcode, err := h.lobby.CreateRace(e.Request.Context(), e.Auth.Id, req.Private)
	if err != nil {
		return apiError(err)
	}

	resp := newRaceResponse(race)
	resp.Passcode = passcode
	return e.JSON(http.StatusCreated, resp)
}

// ListRaces - joinable lobbies with their player counts
func (h *LobbyHandler) ListRaces(e *core.RequestEvent) error {
	races, err := h.lobby.ListRaces(e.Request.Context())
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"races": races,
		"total": len(races),
	})
}

// GetRace - one race and its results by place
func (h *LobbyHandler) GetRace(e *core.RequestEvent) error {
	raceID := e.Request.PathValue("raceId")
	if raceID == "" {
		return apis.NewBadRequestError("Race ID is required", nil)
	}

	race, results, err := h.lobby.RaceDetail(e.Request.Context(), raceID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"race":    newRaceResponse(race),
		"results": results,
	})
}

// RandomQuote - a random quote from the catalogue
func (h *LobbyHandler) RandomQuote(e *core.RequestEvent) error {
	quote, err := h.lobby.RandomQuote(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, quote)
}

// MyStats - finished races and aggregates of the caller
func (h *LobbyHandler) MyStats(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	stats, err := h.lobby.PlayerStats(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, stats)
}
