// Package gameserver exposes the coordinator over HTTP and WebSocket: a
// small REST surface for session creation, identity, and match history,
// plus a realtime endpoint that streams session state and accepts commands.
package gameserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/avatar"
	"github.com/munchkin-companion/server/internal/game/history"
	"github.com/munchkin-companion/server/internal/game/session"
	"github.com/munchkin-companion/server/internal/identity"
)

// Handler carries the dependencies of every endpoint.
type Handler struct {
	repo     *session.Repository
	hub      *Hub
	history  *history.Recorder
	warmer   *avatar.Warmer
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the endpoint handler. warmer may be nil to disable
// portrait warming.
func NewHandler(repo *session.Repository, hub *Hub, hist *history.Recorder, warmer *avatar.Warmer, logger *zap.Logger) *Handler {
	return &Handler{
		repo:    repo,
		hub:     hub,
		history: hist,
		warmer:  warmer,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Players connect from phones on the same table's network;
			// the session id is the admission control.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP mux for the server.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", h.handleCreateSession)
	mux.HandleFunc("GET /api/session/{id}", h.handleGetSession)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/identity", h.handleIdentity)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /ws", h.handleWS)
	return mux
}

type createSessionRequest struct {
	HostName string `json:"hostName"`
	MaxLevel int    `json:"maxLevel"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	playerID := identity.NewPlayerID()
	sessionID, err := h.repo.Create(r.Context(), playerID, req.HostName, req.MaxLevel)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.warmAvatar(sessionID, playerID)
	h.writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sessionID,
		PlayerID:  playerID,
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	g, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.buildState(r.PathValue("id"), g))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.List(r.Context())
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"games": entries})
}

func (h *Handler) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"playerId": identity.NewPlayerID()})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("writing response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorMessage{Type: "error", Code: code, Message: message})
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "forbidden":
		status = http.StatusForbidden
	case "not_found":
		status = http.StatusNotFound
	case "validation":
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeError(w, status, code, err.Error())
}
