package gameserver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/game/session"
)

// Hub owns one actor per session with at least one connected client. Actors
// are created on first attach and torn down when the last client detaches,
// so idle sessions cost nothing.
type Hub struct {
	repo   *session.Repository
	logger *zap.Logger

	mu     sync.Mutex
	actors map[string]*hubEntry
	closed bool
}

type hubEntry struct {
	actor *actor
	refs  int
}

// NewHub creates a Hub dispatching into repo.
func NewHub(repo *session.Repository, logger *zap.Logger) *Hub {
	return &Hub{
		repo:   repo,
		logger: logger,
		actors: make(map[string]*hubEntry),
	}
}

// Attach reserves the session's actor for one client and returns a detach
// function. Detaching the last client stops the actor.
func (h *Hub) Attach(sessionID string) func() {
	h.mu.Lock()
	entry, ok := h.actors[sessionID]
	if !ok {
		entry = &hubEntry{actor: newActor(sessionID, h.repo, h.logger)}
		h.actors[sessionID] = entry
		h.logger.Debug("session actor started", zap.String("session_id", sessionID))
	}
	entry.refs++
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.detach(sessionID) })
	}
}

func (h *Hub) detach(sessionID string) {
	h.mu.Lock()
	entry, ok := h.actors[sessionID]
	if ok {
		entry.refs--
		if entry.refs <= 0 {
			delete(h.actors, sessionID)
		} else {
			entry = nil
		}
	}
	h.mu.Unlock()

	if ok && entry != nil {
		entry.actor.shutdown()
		h.logger.Debug("session actor stopped", zap.String("session_id", sessionID))
	}
}

// Dispatch runs cmd on the session's actor and returns its result.
//
// Precondition: The caller must hold an attach for sessionID.
func (h *Hub) Dispatch(ctx context.Context, sessionID, issuerID string, cmd Command) error {
	h.mu.Lock()
	entry, ok := h.actors[sessionID]
	h.mu.Unlock()
	if !ok {
		return ErrActorStopped
	}
	return entry.actor.do(ctx, issuerID, cmd)
}

// Close stops every actor. Used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	entries := make([]*hubEntry, 0, len(h.actors))
	for id, e := range h.actors {
		entries = append(entries, e)
		delete(h.actors, id)
	}
	h.mu.Unlock()

	for _, e := range entries {
		e.actor.shutdown()
	}
}
