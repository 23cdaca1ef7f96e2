// Package turn computes turn-state patches: game start, rotation, and
// host-driven reordering of the turn sequence.
package turn

import (
	"github.com/munchkin-companion/server/internal/game/state"
)

// StartGame computes the patch that moves a lobby into play.
//
// Precondition: g must be in LOBBY and firstPlayerID must appear in the turn
// order (the host normally passes turnOrder[0]).
// Postcondition: The patch sets status IN_GAME, phase EXPLORATION, turn
// number 1, and points the stored index at firstPlayerID.
func StartGame(g *state.GameSession, sessionID, firstPlayerID string) (map[string]any, error) {
	if g.Meta.Status != state.StatusLobby {
		return nil, state.Validationf("game already started (status %s)", g.Meta.Status)
	}
	order := g.EffectiveTurnOrder()
	idx := indexOf(order, firstPlayerID)
	if idx < 0 {
		return nil, state.Validationf("first player %s is not in the turn order", firstPlayerID)
	}
	return map[string]any{
		state.MetaStatusPath(sessionID):     state.StatusInGame,
		state.ActivePlayerIDPath(sessionID): firstPlayerID,
		state.PhasePath(sessionID):          state.PhaseExploration,
		state.TurnNumberPath(sessionID):     1,
		state.TurnIndexPath(sessionID):      idx,
	}, nil
}

// Advance computes the end-of-turn patch.
//
// The next position comes from the stored turn index, never from scanning
// the order for the active player id: scanning goes wrong when a reorder
// lands between the read and the write, skipping or repeating a player.
// The id scan survives only as the legacy fallback for documents that
// predate the stored index (inside EffectiveTurnIndex).
//
// Precondition: g must be IN_GAME with a non-empty turn order.
// Postcondition: The patch advances (index+1) mod len(order), increments the
// turn number, and resets the phase to EXPLORATION.
func Advance(g *state.GameSession, sessionID string) (map[string]any, error) {
	if g.Meta.Status != state.StatusInGame {
		return nil, state.Validationf("cannot end a turn while status is %s", g.Meta.Status)
	}
	order := g.EffectiveTurnOrder()
	if len(order) == 0 {
		return nil, state.Validationf("turn order is empty")
	}
	idx := g.EffectiveTurnIndex(order)
	if idx < 0 || idx >= len(order) {
		// A kick can shrink the order under a stale index; wrap rather
		// than fault on the inconsistent document.
		idx = 0
	}
	next := (idx + 1) % len(order)
	return map[string]any{
		state.ActivePlayerIDPath(sessionID): order[next],
		state.PhasePath(sessionID):          state.PhaseExploration,
		state.TurnNumberPath(sessionID):     g.TurnState.TurnNumber + 1,
		state.TurnIndexPath(sessionID):      next,
	}, nil
}

// Reorder computes the patch for a host-rearranged turn sequence. The active
// player never changes; the stored index is recomputed against the new order
// and written in the same batch as the order itself.
//
// Precondition: newOrder must be a permutation of the current player id set.
// Postcondition: The patch leaves order[index] == activePlayerID, with the
// index clamped to 0 when the active player is missing from newOrder.
func Reorder(g *state.GameSession, sessionID string, newOrder []string, activePlayerID string) (map[string]any, error) {
	if !isPermutation(newOrder, g.Players) {
		return nil, state.Validationf("new turn order is not a permutation of the current players")
	}
	idx := indexOf(newOrder, activePlayerID)
	if idx < 0 {
		idx = 0
	}
	return map[string]any{
		state.TurnOrderPath(sessionID): newOrder,
		state.TurnIndexPath(sessionID): idx,
	}, nil
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func isPermutation(order []string, players map[string]state.PlayerProfile) bool {
	if len(order) != len(players) {
		return false
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if seen[id] {
			return false
		}
		seen[id] = true
		if _, ok := players[id]; !ok {
			return false
		}
	}
	return true
}
