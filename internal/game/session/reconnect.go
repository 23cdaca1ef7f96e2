package session

import (
	"sort"

	"github.com/munchkin-companion/server/internal/game/state"
)

// matchProfileByName returns the id of the player whose display name equals
// name, for the reconnection path: a returning device carries a fresh player
// id, so the name is the only stable handle. When several profiles share the
// name the lowest id wins, so repeated attempts resolve the same way.
func matchProfileByName(g *state.GameSession, name string) (string, bool) {
	ids := make([]string, 0, len(g.Players))
	for id, p := range g.Players {
		if p.Name == name {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

// reconnectPatch moves the profile stored under oldID to newID and rewrites
// every reference to oldID across the document: host, active player, combat
// helper, helper handshake, and the turn order. Everything lands in one
// batch so no observer ever sees a half-renamed session.
func reconnectPatch(g *state.GameSession, sessionID, oldID, newID string) map[string]any {
	profile, _ := g.Player(oldID)
	patch := map[string]any{
		state.PlayerPath(sessionID, newID): profile,
		state.PlayerPath(sessionID, oldID): nil,
	}
	if g.Meta.HostID == oldID {
		patch[state.MetaHostIDPath(sessionID)] = newID
	}
	if g.TurnState.ActivePlayerID == oldID {
		patch[state.ActivePlayerIDPath(sessionID)] = newID
	}
	if g.CombatState.HelperID != nil && *g.CombatState.HelperID == oldID {
		patch[state.CombatFieldPath(sessionID, "helperId")] = newID
	}
	if req := g.CombatState.HelperRequest; req != nil && (req.FromID == oldID || req.ToID == oldID) {
		renamed := *req
		if renamed.FromID == oldID {
			renamed.FromID = newID
		}
		if renamed.ToID == oldID {
			renamed.ToID = newID
		}
		patch[state.CombatFieldPath(sessionID, "helperRequest")] = renamed
	}
	if order := g.TurnState.TurnOrder; len(order) > 0 {
		changed := false
		rewritten := make([]string, len(order))
		for i, id := range order {
			if id == oldID {
				rewritten[i] = newID
				changed = true
			} else {
				rewritten[i] = id
			}
		}
		if changed {
			patch[state.TurnOrderPath(sessionID)] = rewritten
		}
	}
	return patch
}
