package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"typerace/internal/services"
	"typerace/internal/status"
	"typerace/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// RaceSocketHandler is the WebSocket gateway of a race: one connection per
// player, joined on connect and removed on disconnect.
type RaceSocketHandler struct {
	lobby       *services.LobbyService
	coordinator *services.Coordinator
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func NewRaceSocketHandler(lobby *services.LobbyService, coordinator *services.Coordinator, logger *slog.Logger) *RaceSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RaceSocketHandler{
		lobby:       lobby,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connect - GET /ws/races/{raceId}?token=...&passcode=...
func (h *RaceSocketHandler) Connect(e *core.RequestEvent) error {
	raceID := e.Request.PathValue("raceId")
	if raceID == "" {
		return apis.NewBadRequestError("Race ID is required", nil)
	}

	player, err := h.authenticate(e)
	if err != nil {
		return apis.NewUnauthorizedError("Missing or invalid auth token", nil)
	}

	if err := h.lobby.CheckAccess(e.Request.Context(), raceID, e.Request.URL.Query().Get("passcode")); err != nil {
		return apiError(err)
	}

	conn, err := h.upgrader.Upgrade(e.Response, e.Request, nil)
	if err != nil {
		// the upgrader has already answered the request
		h.logger.Warn("WebSocket upgrade failed", "race_id", raceID, "error", err)
		return nil
	}

	h.Serve(conn, raceID, player)
	return nil
}

// authenticate resolves the player from the request auth or, since browsers
// cannot set headers on WebSocket requests, from the token query parameter.
func (h *RaceSocketHandler) authenticate(e *core.RequestEvent) (models.Player, error) {
	record := e.Auth
	if record == nil {
		token := e.Request.URL.Query().Get("token")
		if token == "" {
			return models.Player{}, errors.New("no auth token")
		}

		var err error
		record, err = e.App.FindAuthRecordByToken(token, core.TokenTypeAuth)
		if err != nil {
			return models.Player{}, err
		}
	}

	return PlayerFromRecord(record), nil
}

func PlayerFromRecord(record *core.Record) models.Player {
	name := record.GetString("name")
	if name == "" {
		name = record.GetString("username")
	}
	if name == "" {
		name, _, _ = strings.Cut(record.Email(), "@")
	}
	return models.Player{ID: record.Id, Username: name}
}

// socket is the part of *websocket.Conn the gateway uses.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Serve runs an upgraded connection until either side hangs up. It owns conn
// and closes it before returning.
func (h *RaceSocketHandler) Serve(conn *websocket.Conn, raceID string, player models.Player) {
	h.serve(conn, raceID, player)
}

func (h *RaceSocketHandler) serve(conn socket, raceID string, player models.Player) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.coordinator.Join(ctx, raceID, player)
	if err != nil {
		h.logger.Info("Refused race connection", "race_id", raceID, "player_id", player.ID, "error", err)
		closeConn(conn, websocket.ClosePolicyViolation, refusalReason(err))
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, conn, sub)
		// unblocks readPump when the client stopped accepting writes
		_ = conn.Close()
	}()

	if err := h.readPump(ctx, conn, sub); err != nil {
		h.logger.Error("Closing race connection", "race_id", raceID, "player_id", player.ID, "error", err)
		closeConn(conn, websocket.CloseInternalServerErr, "Server error")
	}

	if err := h.coordinator.Leave(context.Background(), sub); err != nil && !errors.Is(err, status.ErrNotParticipant) {
		h.logger.Error("Failed to leave race", "race_id", raceID, "player_id", player.ID, "error", err)
	}

	cancel()
	<-done
}

// readPump feeds client frames to the coordinator. It returns nil when the
// client goes away and an error when the connection must be dropped.
func (h *RaceSocketHandler) readPump(ctx context.Context, conn socket, sub *services.Subscription) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Race connection dropped", "race_id", sub.RaceID, "player_id", sub.UserID, "error", err)
			}
			return nil
		}

		if err := h.coordinator.HandleMessage(ctx, sub, data); err != nil {
			return err
		}
	}
}

// writePump is the only writer of data frames on conn.
func (h *RaceSocketHandler) writePump(ctx context.Context, conn socket, sub *services.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := make(chan models.Event)
	go func() {
		defer close(events)
		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := models.EncodeEvent(ev)
			if err != nil {
				h.logger.Error("Failed to encode event", "type", ev.EventType(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, status.ErrAlreadyJoined):
		return "Already joined"
	case errors.Is(err, status.ErrRaceUnavailable):
		return "Race is not open for joining"
	case errors.Is(err, status.ErrRaceNotFound):
		return "Race not found"
	default:
		return "Server error"
	}
}

func closeConn(conn socket, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
