package gameserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/avatar"
	"github.com/munchkin-companion/server/internal/game/combat"
	"github.com/munchkin-companion/server/internal/game/session"
	"github.com/munchkin-companion/server/internal/game/state"
)

const (
	writeTimeout   = 10 * time.Second
	commandTimeout = 5 * time.Second
)

// stateMessage is pushed to every connected client whenever the session
// document changes. The combat view and timer are derived server-side on
// each push so clients never cache stale numbers.
type stateMessage struct {
	Type           string             `json:"type"`
	SessionID      string             `json:"sessionId"`
	Game           *state.GameSession `json:"game"`
	Combat         combat.Summary     `json:"combat"`
	TimerRemaining int                `json:"timerRemaining"`
	Avatars        map[string]string  `json:"avatars,omitempty"`
}

type ackMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps mutation-layer errors onto the wire error vocabulary.
func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrForbidden):
		return "forbidden"
	case errors.Is(err, state.ErrSessionNotFound), errors.Is(err, state.ErrPlayerNotFound):
		return "not_found"
	case state.IsValidation(err):
		return "validation"
	default:
		return "transport"
	}
}

// client is one websocket connection. Gorilla connections allow a single
// concurrent writer, so all sends go through the mutex.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// handleWS is the realtime endpoint: GET /ws?session=ID&player=PID&name=NAME.
//
// A request carrying a name joins (or reconnects) the player before
// streaming; a request without one must reference a player already in the
// session. The connection then receives a state message for every document
// version and accepts command frames until it closes.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	playerID := r.URL.Query().Get("player")
	playerName := r.URL.Query().Get("name")
	if sessionID == "" || playerID == "" {
		http.Error(w, "session and player are required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	ctx := r.Context()
	if playerName != "" {
		if err := h.repo.Join(ctx, sessionID, playerID, playerName); err != nil {
			_ = c.send(errorMessage{Type: "error", Code: errorCode(err), Message: err.Error()})
			return
		}
		h.warmAvatar(sessionID, playerID)
	} else {
		g, err := h.repo.Get(ctx, sessionID)
		if err != nil {
			_ = c.send(errorMessage{Type: "error", Code: errorCode(err), Message: err.Error()})
			return
		}
		if _, ok := g.Player(playerID); !ok {
			_ = c.send(errorMessage{Type: "error", Code: "not_found", Message: "player not in session"})
			return
		}
	}

	detach := h.hub.Attach(sessionID)
	defer detach()

	cancelWatch, err := h.repo.Watch(sessionID, func(g *state.GameSession) {
		if err := c.send(h.buildState(sessionID, g)); err != nil {
			h.logger.Debug("state push failed",
				zap.String("session_id", sessionID),
				zap.String("player_id", playerID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		_ = c.send(errorMessage{Type: "error", Code: "transport", Message: "subscription failed"})
		return
	}
	defer cancelWatch()

	h.logger.Info("client connected",
		zap.String("session_id", sessionID),
		zap.String("player_id", playerID),
	)
	defer h.logger.Info("client disconnected",
		zap.String("session_id", sessionID),
		zap.String("player_id", playerID),
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := DecodeCommand(data)
		if err != nil {
			_ = c.send(errorMessage{Type: "error", Code: "validation", Message: err.Error()})
			continue
		}

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err = h.hub.Dispatch(cmdCtx, sessionID, playerID, cmd)
		cancel()
		if err != nil {
			_ = c.send(errorMessage{Type: "error", Code: errorCode(err), Message: err.Error()})
			continue
		}
		_ = c.send(ackMessage{Type: "ack", Command: cmd.Name()})
	}
}

// buildState assembles the push message for one document version.
func (h *Handler) buildState(sessionID string, g *state.GameSession) stateMessage {
	msg := stateMessage{
		Type:      "state",
		SessionID: sessionID,
		Game:      g,
	}
	if g == nil {
		return msg
	}
	msg.Combat = combat.Summarize(g)
	msg.TimerRemaining = h.repo.Timer().Remaining(g, time.Now())
	avatars := make(map[string]string, len(g.Players))
	for id, p := range g.Players {
		avatars[id] = avatar.URL(p)
	}
	msg.Avatars = avatars
	return msg
}

// warmAvatar pre-fetches a player's portrait in the background.
func (h *Handler) warmAvatar(sessionID, playerID string) {
	if h.warmer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		g, err := h.repo.Get(ctx, sessionID)
		if err != nil {
			return
		}
		if p, ok := g.Player(playerID); ok {
			h.warmer.Warm(ctx, avatar.URL(p))
		}
	}()
}
