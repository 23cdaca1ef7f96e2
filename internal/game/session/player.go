package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/game/combat"
	"github.com/munchkin-companion/server/internal/game/state"
)

// gearSlots are the writable gear fields. Backpack is a list and goes
// through PlayerUpdate instead.
var gearSlots = map[string]bool{
	"head":  true,
	"armor": true,
	"hands": true,
	"feet":  true,
	"mount": true,
}

// PlayerUpdate is a typed partial update of one player's profile. Nil
// fields are left untouched; set fields are range-checked before any write.
type PlayerUpdate struct {
	Name     *string
	IsReady  *bool
	Level    *int
	Debuff   *int
	Sex      *string
	Race     *string
	Class    *string
	Head     *int
	Armor    *int
	Hands    *int
	Feet     *int
	Mount    *int
	Backpack *[]string
}

func (u PlayerUpdate) validate(maxLevel int) error {
	empty := u.Name == nil && u.IsReady == nil && u.Level == nil && u.Debuff == nil &&
		u.Sex == nil && u.Race == nil && u.Class == nil &&
		u.Head == nil && u.Armor == nil && u.Hands == nil && u.Feet == nil &&
		u.Mount == nil && u.Backpack == nil
	if empty {
		return state.Validationf("empty player update")
	}
	if u.Name != nil && *u.Name == "" {
		return state.Validationf("player name must not be empty")
	}
	if u.Level != nil && (*u.Level < 1 || *u.Level > maxLevel) {
		return state.Validationf("level must be 1-%d, got %d", maxLevel, *u.Level)
	}
	if u.Debuff != nil && *u.Debuff < 0 {
		return state.Validationf("debuff must be >= 0, got %d", *u.Debuff)
	}
	if u.Sex != nil && *u.Sex != "M" && *u.Sex != "F" {
		return state.Validationf("sex must be M or F, got %q", *u.Sex)
	}
	for slot, v := range map[string]*int{"head": u.Head, "armor": u.Armor, "hands": u.Hands, "feet": u.Feet, "mount": u.Mount} {
		if v != nil && *v < 0 {
			return state.Validationf("gear %s must be >= 0, got %d", slot, *v)
		}
	}
	return nil
}

func (u PlayerUpdate) patch(sessionID, playerID string) map[string]any {
	base := state.PlayerPath(sessionID, playerID)
	patch := make(map[string]any)
	put := func(rel string, v any) { patch[base+"/"+rel] = v }

	if u.Name != nil {
		put("name", *u.Name)
	}
	if u.IsReady != nil {
		put("isReady", *u.IsReady)
	}
	if u.Level != nil {
		put("attributes/level", *u.Level)
	}
	if u.Debuff != nil {
		put("attributes/debuff", *u.Debuff)
	}
	if u.Sex != nil {
		put("attributes/sex", *u.Sex)
	}
	if u.Race != nil {
		put("attributes/race", *u.Race)
	}
	if u.Class != nil {
		put("attributes/class", *u.Class)
	}
	for slot, v := range map[string]*int{"head": u.Head, "armor": u.Armor, "hands": u.Hands, "feet": u.Feet, "mount": u.Mount} {
		if v != nil {
			put("gear/"+slot, *v)
		}
	}
	if u.Backpack != nil {
		// An explicitly empty backpack still has to overwrite the stored
		// list, so normalise nil slices to a non-nil empty one.
		items := *u.Backpack
		if items == nil {
			items = []string{}
		}
		put("gear/backpack", items)
	}
	return patch
}

// UpdatePlayer applies a partial profile update.
//
// Precondition: Players edit their own profile only; a rename must not
// collide with another player's name, since names are the reconnection key.
func (r *Repository) UpdatePlayer(ctx context.Context, sessionID, issuerID, playerID string, upd PlayerUpdate) error {
	if issuerID != playerID {
		return fmt.Errorf("%w: players edit only their own profile", ErrForbidden)
	}
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := g.Player(playerID); !ok {
		return fmt.Errorf("updating %s: %w", playerID, state.ErrPlayerNotFound)
	}
	if err := upd.validate(r.maxLevelOf(g)); err != nil {
		return err
	}
	if upd.Name != nil {
		if otherID, ok := matchProfileByName(g, *upd.Name); ok && otherID != playerID {
			return state.Validationf("name %q is already taken", *upd.Name)
		}
	}
	return r.apply(ctx, "updating player", upd.patch(sessionID, playerID))
}

// SetGear writes one gear slot value.
//
// Precondition: slot must be one of head, armor, hands, feet, or mount;
// players edit their own gear only.
func (r *Repository) SetGear(ctx context.Context, sessionID, issuerID, playerID, slot string, value int) error {
	if issuerID != playerID {
		return fmt.Errorf("%w: players edit only their own gear", ErrForbidden)
	}
	if !gearSlots[slot] {
		return state.Validationf("unknown gear slot %q", slot)
	}
	if value < 0 {
		return state.Validationf("gear %s must be >= 0, got %d", slot, value)
	}
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := g.Player(playerID); !ok {
		return fmt.Errorf("updating %s: %w", playerID, state.ErrPlayerNotFound)
	}
	return r.apply(ctx, "setting gear", map[string]any{
		state.PlayerGearSlotPath(sessionID, playerID, slot): value,
	})
}

// SetLevel writes a player's level, clamped to [1, maxLevel]. Manual level
// edits never end the game; victory is decided by winning a combat or by
// the host ending the game.
func (r *Repository) SetLevel(ctx context.Context, sessionID, issuerID, playerID string, level int) error {
	if issuerID != playerID {
		return fmt.Errorf("%w: players edit only their own level", ErrForbidden)
	}
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := g.Player(playerID); !ok {
		return fmt.Errorf("updating %s: %w", playerID, state.ErrPlayerNotFound)
	}
	clamped := combat.ClampLevel(level, r.maxLevelOf(g))
	return r.apply(ctx, "setting level", map[string]any{
		state.PlayerLevelPath(sessionID, playerID): clamped,
	})
}

// SetReady flips a player's lobby ready flag.
func (r *Repository) SetReady(ctx context.Context, sessionID, issuerID, playerID string, ready bool) error {
	if issuerID != playerID {
		return fmt.Errorf("%w: players set only their own ready flag", ErrForbidden)
	}
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := g.Player(playerID); !ok {
		return fmt.Errorf("updating %s: %w", playerID, state.ErrPlayerNotFound)
	}
	if g.Meta.Status != state.StatusLobby {
		return state.Validationf("ready flags only matter in the lobby")
	}
	err = r.apply(ctx, "setting ready flag", map[string]any{
		state.PlayerReadyPath(sessionID, playerID): ready,
	})
	if err != nil {
		return err
	}
	r.logger.Debug("ready flag set",
		zap.String("session_id", sessionID),
		zap.String("player_id", playerID),
		zap.Bool("ready", ready),
	)
	return nil
}

func (r *Repository) maxLevelOf(g *state.GameSession) int {
	if g.Meta.MaxLevel >= minMaxLevel {
		return g.Meta.MaxLevel
	}
	return r.defaultMaxLevel
}
