package combat

import (
	"time"

	"github.com/munchkin-companion/server/internal/game/state"
)

// Timer derives the combat countdown from the stored start epoch and the
// signed extra-seconds accumulator. Nothing ticks server-side: every
// observer recomputes the remaining time from the same stored fields and
// its own wall clock, which keeps all clients approximately in sync
// without a central clock service.
type Timer struct {
	// InitialSeconds is the countdown duration at combat start.
	InitialSeconds int
	// Step is the granularity of adjustments, in seconds.
	Step int
	// MinRemaining is the floor below which time removal is refused.
	MinRemaining int
}

// DefaultTimer returns the standard 180s countdown with 30s adjustments.
func DefaultTimer() Timer {
	return Timer{InitialSeconds: 180, Step: 30, MinRemaining: 30}
}

// Remaining returns the seconds left on the countdown at now:
// max(0, initial + extra − floor(elapsed)). Before a combat has stamped
// its start time the full initial duration is reported.
func (t Timer) Remaining(g *state.GameSession, now time.Time) int {
	startedAt := g.CombatState.CombatStartedAt
	if startedAt == nil {
		return t.InitialSeconds
	}
	elapsed := int((now.UnixMilli() - *startedAt) / 1000)
	remaining := t.InitialSeconds + g.CombatState.CombatExtraSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AddTime computes the single-field patch adjusting the countdown by delta
// seconds. Removal that would drive the currently computed remaining time
// below MinRemaining is refused; the guard is best-effort only, since two
// players can race it and last write wins.
//
// Precondition: A combat must be active; delta must be a non-zero multiple
// of Step.
func (t Timer) AddTime(g *state.GameSession, sessionID string, delta int, now time.Time) (map[string]any, error) {
	if !g.CombatState.IsActive {
		return nil, state.Validationf("no active combat timer to adjust")
	}
	if delta == 0 || delta%t.Step != 0 {
		return nil, state.Validationf("time adjustment must be a non-zero multiple of %ds, got %ds", t.Step, delta)
	}
	if delta < 0 && t.Remaining(g, now)+delta < t.MinRemaining {
		return nil, state.Validationf("cannot remove time below %ds remaining", t.MinRemaining)
	}
	return map[string]any{
		state.CombatFieldPath(sessionID, "combatExtraSeconds"): g.CombatState.CombatExtraSeconds + delta,
	}, nil
}
