// Package combat implements strength computation, combat resolution,
// leveling, the helper handshake, and the shared countdown timer.
package combat

import (
	"time"

	"github.com/munchkin-companion/server/internal/game/state"
)

// Strength returns a player's combat power: level plus the four worn gear
// slots minus debuff. Backpack contents, mount, and the descriptive
// attributes never contribute.
func Strength(p state.PlayerProfile) int {
	return p.Attributes.Level +
		p.Gear.Head + p.Gear.Armor + p.Gear.Hands + p.Gear.Feet -
		p.Attributes.Debuff
}

// MunchkinSide returns the munchkin side total: the active player's
// strength, the helper's strength when one is set, plus player modifiers.
// Dangling player references contribute nothing.
func MunchkinSide(g *state.GameSession) int {
	active, ok := g.Player(g.TurnState.ActivePlayerID)
	if !ok {
		return 0
	}
	total := Strength(active)
	if helper, ok := g.Helper(); ok {
		total += Strength(helper)
	}
	return total + g.CombatState.PlayerModifiers
}

// MonsterSide returns the monster side total.
func MonsterSide(g *state.GameSession) int {
	return g.CombatState.MonsterLevel + g.CombatState.MonsterModifiers
}

// Summary is the derived view of a combat, recomputed from the document on
// every update rather than cached.
type Summary struct {
	IsActive         bool `json:"isActive"`
	MunchkinStrength int  `json:"munchkinStrength"`
	MonsterStrength  int  `json:"monsterStrength"`
	IsWinning        bool `json:"isWinning"`
	Difference       int  `json:"difference"`
}

// Summarize derives the combat view for g. Ties favor the monster.
func Summarize(g *state.GameSession) Summary {
	if g == nil || !g.CombatState.IsActive {
		return Summary{}
	}
	munchkin := MunchkinSide(g)
	monster := MonsterSide(g)
	return Summary{
		IsActive:         true,
		MunchkinStrength: munchkin,
		MonsterStrength:  monster,
		IsWinning:        munchkin > monster,
		Difference:       munchkin - monster,
	}
}

// ClampLevel clamps level into [1, maxLevel].
func ClampLevel(level, maxLevel int) int {
	if level < 1 {
		return 1
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}

// Start computes the patch opening a combat for the active player.
//
// Precondition: g must be IN_GAME during EXPLORATION. The caller enforces
// that the issuer is the active player.
// Postcondition: The patch enters COMBAT with a level-1 monster, zero
// modifiers, no helper, and a countdown anchored at now.
func Start(g *state.GameSession, sessionID string, now time.Time) (map[string]any, error) {
	if g.Meta.Status != state.StatusInGame {
		return nil, state.Validationf("cannot start combat while status is %s", g.Meta.Status)
	}
	if g.TurnState.Phase != state.PhaseExploration {
		return nil, state.Validationf("combat already in progress")
	}
	return map[string]any{
		state.PhasePath(sessionID):                             state.PhaseCombat,
		state.CombatFieldPath(sessionID, "isActive"):           true,
		state.CombatFieldPath(sessionID, "monsterLevel"):       1,
		state.CombatFieldPath(sessionID, "monsterModifiers"):   0,
		state.CombatFieldPath(sessionID, "playerModifiers"):    0,
		state.CombatFieldPath(sessionID, "helperId"):           nil,
		state.CombatFieldPath(sessionID, "helperRequest"):      nil,
		state.CombatFieldPath(sessionID, "combatStartedAt"):    now.UnixMilli(),
		state.CombatFieldPath(sessionID, "combatExtraSeconds"): 0,
	}, nil
}

// minModifier is the floor for both modifier accumulators.
const minModifier = -99

// Adjustment is a typed partial update of the combat numbers. Nil fields
// are left untouched. Out-of-range values are rejected before any write.
type Adjustment struct {
	MonsterLevel     *int
	MonsterModifiers *int
	PlayerModifiers  *int
}

// Validate checks the adjustment's range constraints.
//
// Postcondition: Returns nil when every set field is in range and at least
// one field is set.
func (a Adjustment) Validate() error {
	if a.MonsterLevel == nil && a.MonsterModifiers == nil && a.PlayerModifiers == nil {
		return state.Validationf("empty combat adjustment")
	}
	if a.MonsterLevel != nil && *a.MonsterLevel < 1 {
		return state.Validationf("monster level must be >= 1, got %d", *a.MonsterLevel)
	}
	if a.MonsterModifiers != nil && *a.MonsterModifiers < minModifier {
		return state.Validationf("monster modifiers must be >= %d, got %d", minModifier, *a.MonsterModifiers)
	}
	if a.PlayerModifiers != nil && *a.PlayerModifiers < minModifier {
		return state.Validationf("player modifiers must be >= %d, got %d", minModifier, *a.PlayerModifiers)
	}
	return nil
}

// Patch computes the store patch for the adjustment.
//
// Precondition: A combat must be active.
func (a Adjustment) Patch(g *state.GameSession, sessionID string) (map[string]any, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if !g.CombatState.IsActive {
		return nil, state.Validationf("no active combat to adjust")
	}
	patch := make(map[string]any, 3)
	if a.MonsterLevel != nil {
		patch[state.CombatFieldPath(sessionID, "monsterLevel")] = *a.MonsterLevel
	}
	if a.MonsterModifiers != nil {
		patch[state.CombatFieldPath(sessionID, "monsterModifiers")] = *a.MonsterModifiers
	}
	if a.PlayerModifiers != nil {
		patch[state.CombatFieldPath(sessionID, "playerModifiers")] = *a.PlayerModifiers
	}
	return patch, nil
}

// resetPatch returns the field writes that close any combat: phase back to
// EXPLORATION and every combat field to its default.
func resetPatch(sessionID string) map[string]any {
	return map[string]any{
		state.PhasePath(sessionID):                             state.PhaseExploration,
		state.CombatFieldPath(sessionID, "isActive"):           false,
		state.CombatFieldPath(sessionID, "monsterLevel"):       1,
		state.CombatFieldPath(sessionID, "monsterModifiers"):   0,
		state.CombatFieldPath(sessionID, "playerModifiers"):    0,
		state.CombatFieldPath(sessionID, "helperId"):           nil,
		state.CombatFieldPath(sessionID, "helperRequest"):      nil,
		state.CombatFieldPath(sessionID, "combatStartedAt"):    nil,
		state.CombatFieldPath(sessionID, "combatExtraSeconds"): 0,
	}
}

// End computes the patch closing a combat. On a win the active player gains
// a level, clamped to maxLevel; reaching maxLevel ends the session and
// produces the history entry to record. On a flee nothing else changes.
//
// Postcondition: The returned entry is non-nil exactly when the session
// transitions to ENDED.
func End(g *state.GameSession, sessionID string, won bool, now time.Time) (map[string]any, *state.GameHistoryEntry, error) {
	if !g.CombatState.IsActive {
		return nil, nil, state.Validationf("no active combat to end")
	}
	patch := resetPatch(sessionID)
	if !won {
		return patch, nil, nil
	}

	activeID := g.TurnState.ActivePlayerID
	active, ok := g.Player(activeID)
	if !ok {
		// The active player vanished mid-combat (kick race). Close the
		// combat without awarding anything.
		return patch, nil, nil
	}

	maxLevel := g.Meta.MaxLevel
	if maxLevel <= 0 {
		maxLevel = 10
	}
	newLevel := ClampLevel(active.Attributes.Level+1, maxLevel)
	patch[state.PlayerLevelPath(sessionID, activeID)] = newLevel
	if newLevel < maxLevel {
		return patch, nil, nil
	}

	patch[state.MetaStatusPath(sessionID)] = state.StatusEnded
	patch[state.MetaWinnerIDPath(sessionID)] = activeID
	entry := buildHistoryEntry(g, sessionID, activeID, maxLevel, now)
	return patch, &entry, nil
}

// Die computes the patch for a player death: the four worn gear slots drop
// to zero and the backpack empties, while level, race, class, sex, and
// mount survive. The combat closes exactly as a lost combat does.
func Die(g *state.GameSession, sessionID, playerID string) (map[string]any, error) {
	if _, ok := g.Player(playerID); !ok {
		return nil, state.Validationf("player %s is not in this session", playerID)
	}
	patch := resetPatch(sessionID)
	patch[state.PlayerGearSlotPath(sessionID, playerID, "head")] = 0
	patch[state.PlayerGearSlotPath(sessionID, playerID, "armor")] = 0
	patch[state.PlayerGearSlotPath(sessionID, playerID, "hands")] = 0
	patch[state.PlayerGearSlotPath(sessionID, playerID, "feet")] = 0
	patch[state.PlayerBackpackPath(sessionID, playerID)] = []string{}
	return patch, nil
}

// BuildHistoryEntry assembles the record for a session ended by explicit
// host action (forced end with a chosen winner).
func BuildHistoryEntry(g *state.GameSession, sessionID, winnerID string, now time.Time) state.GameHistoryEntry {
	maxLevel := g.Meta.MaxLevel
	if maxLevel <= 0 {
		maxLevel = 10
	}
	return buildHistoryEntry(g, sessionID, winnerID, maxLevel, now)
}

func buildHistoryEntry(g *state.GameSession, sessionID, winnerID string, maxLevel int, now time.Time) state.GameHistoryEntry {
	entry := state.GameHistoryEntry{
		GameID:    sessionID,
		CreatedAt: g.Meta.CreatedAt,
		EndedAt:   now.UnixMilli(),
		WinnerID:  winnerID,
		MaxLevel:  maxLevel,
	}
	if winner, ok := g.Player(winnerID); ok {
		entry.WinnerName = winner.Name
	}
	names := make([]string, 0, len(g.Players))
	for _, p := range g.Players {
		names = append(names, p.Name)
	}
	entry.PlayerNames = names
	return entry
}
