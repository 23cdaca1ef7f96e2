package combat

import (
	"github.com/munchkin-companion/server/internal/game/state"
)

// Helper handshake: none → pending → {accepted, declined} → none.
// At most one outstanding request exists; an accepted helper counts in the
// munchkin side until the combat ends or the active player removes them.

// SendHelperRequest computes the patch creating a pending invitation from
// the active player to toID.
//
// Precondition: A combat must be active with no helper and no outstanding
// request; toID must be another player in the session.
func SendHelperRequest(g *state.GameSession, sessionID, fromID, toID string) (map[string]any, error) {
	if !g.CombatState.IsActive {
		return nil, state.Validationf("no active combat to request help for")
	}
	if toID == fromID {
		return nil, state.Validationf("cannot invite yourself as helper")
	}
	if _, ok := g.Player(toID); !ok {
		return nil, state.Validationf("helper candidate %s is not in this session", toID)
	}
	if g.CombatState.HelperID != nil {
		return nil, state.Validationf("a helper is already set")
	}
	if req := g.CombatState.HelperRequest; req != nil && req.Status == state.HelperPending {
		return nil, state.Validationf("a helper request is already pending")
	}
	return map[string]any{
		state.CombatFieldPath(sessionID, "helperRequest"): state.HelperRequest{
			FromID: fromID,
			ToID:   toID,
			Status: state.HelperPending,
		},
	}, nil
}

// RespondHelperRequest computes the patch answering the pending invitation.
// Accepting promotes the addressee to helper and clears the request;
// declining just clears it.
//
// Precondition: A pending request must exist and status must be
// HelperAccepted or HelperDeclined. The caller enforces that the issuer is
// the addressee.
func RespondHelperRequest(g *state.GameSession, sessionID string, status state.HelperRequestStatus) (map[string]any, error) {
	req := g.CombatState.HelperRequest
	if req == nil || req.Status != state.HelperPending {
		return nil, state.Validationf("no pending helper request to answer")
	}
	switch status {
	case state.HelperAccepted:
		return map[string]any{
			state.CombatFieldPath(sessionID, "helperId"):      req.ToID,
			state.CombatFieldPath(sessionID, "helperRequest"): nil,
		}, nil
	case state.HelperDeclined:
		return map[string]any{
			state.CombatFieldPath(sessionID, "helperRequest"): nil,
		}, nil
	default:
		return nil, state.Validationf("invalid helper response %q", status)
	}
}

// CancelHelperRequest computes the patch withdrawing a pending invitation.
//
// Precondition: A pending request must exist. The caller enforces that the
// issuer is the active player.
func CancelHelperRequest(g *state.GameSession, sessionID string) (map[string]any, error) {
	req := g.CombatState.HelperRequest
	if req == nil || req.Status != state.HelperPending {
		return nil, state.Validationf("no pending helper request to cancel")
	}
	return map[string]any{
		state.CombatFieldPath(sessionID, "helperRequest"): nil,
	}, nil
}

// RemoveHelper computes the patch dismissing an accepted helper.
//
// Precondition: A helper must be set. The caller enforces that the issuer
// is the active player.
func RemoveHelper(g *state.GameSession, sessionID string) (map[string]any, error) {
	if g.CombatState.HelperID == nil {
		return nil, state.Validationf("no helper to remove")
	}
	return map[string]any{
		state.CombatFieldPath(sessionID, "helperId"): nil,
	}, nil
}
