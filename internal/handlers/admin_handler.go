package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"typerace/internal/services"
)

type AdminHandler struct {
	coordinator *services.Coordinator
	roster      services.RosterReader
	logger      *slog.Logger
}

func NewAdminHandler(coordinator *services.Coordinator, roster services.RosterReader, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		coordinator: coordinator,
		roster:      roster,
		logger:      logger,
	}
}

type liveRaceResponse struct {
	raceResponse
	Connected     int  `json:"connected"`
	Racing        int  `json:"racing"`
	Finishers     int  `json:"finishers"`
	CachedPlayers *int `json:"cached_players"`
}

// GetRaceDashboard - List every race held in memory
func (h *AdminHandler) GetRaceDashboard(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}

	live := h.coordinator.Live()
	dashboard := make([]liveRaceResponse, 0, len(live))
	for _, race := range live {
		dashboard = append(dashboard, h.liveResponse(e, race))
	}

	return e.JSON(http.StatusOK, map[string]any{
		"sessions": len(dashboard),
		"races":    dashboard,
	})
}

// GetRaceDetails - Live state of one race
func (h *AdminHandler) GetRaceDetails(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}

	raceID := e.Request.URL.Query().Get("race_id")
	if raceID == "" {
		return apis.NewBadRequestError("Race ID required", nil)
	}

	for _, race := range h.coordinator.Live() {
		if race.Race.ID == raceID {
			return e.JSON(http.StatusOK, h.liveResponse(e, race))
		}
	}
	return apis.NewNotFoundError("Race has no live session", nil)
}

// ForceStartRace - Start the countdown of a waiting race
func (h *AdminHandler) ForceStartRace(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}

	var req struct {
		RaceID string `json:"race_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.RaceID == "" {
		return apis.NewBadRequestError("Race ID required", nil)
	}

	if err := h.coordinator.ForceStart(e.Request.Context(), req.RaceID); err != nil {
		return apiError(err)
	}

	h.logger.Info("Admin started race countdown", "admin_id", e.Auth.Id, "race_id", req.RaceID)
	return e.JSON(http.StatusOK, map[string]any{"message": "Race countdown started"})
}

func (h *AdminHandler) liveResponse(e *core.RequestEvent, race services.LiveRace) liveRaceResponse {
	resp := liveRaceResponse{
		raceResponse: newRaceResponse(race.Race),
		Connected:    race.Connected,
		Racing:       race.Racing,
		Finishers:    race.Finishers,
	}

	if h.roster == nil {
		return resp
	}
	cached, err := h.roster.Get(e.Request.Context(), race.Race.ID)
	if err != nil {
		h.logger.Warn("Failed to read cached roster", "race_id", race.Race.ID, "error", err)
		return resp
	}
	if cached != nil {
		n := len(cached.Players)
		resp.CachedPlayers = &n
	}
	return resp
}
