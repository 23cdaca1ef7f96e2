package gameserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/munchkin-companion/server/internal/game/combat"
	"github.com/munchkin-companion/server/internal/game/session"
	"github.com/munchkin-companion/server/internal/game/state"
)

// Command is one validated client mutation. The wire set is closed: anything
// outside it fails to decode, and payloads are range-checked at construction
// so an invalid command never reaches a session actor.
type Command interface {
	// Name is the wire-level command type, echoed back in acks.
	Name() string
	// Apply executes the command against the mutation layer.
	Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error
}

// envelope is the outer frame of every client message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeCommand parses and validates one wire command.
//
// Postcondition: The returned Command carries a well-formed payload; any
// unknown type or out-of-range field yields an error and no Command.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, state.Validationf("malformed command frame: %v", err)
	}

	var cmd Command
	switch env.Type {
	case "updatePlayer":
		cmd = &updatePlayerCommand{}
	case "setGear":
		cmd = &setGearCommand{}
	case "setLevel":
		cmd = &setLevelCommand{}
	case "setReady":
		cmd = &setReadyCommand{}
	case "startGame":
		cmd = &startGameCommand{}
	case "nextTurn":
		cmd = &nextTurnCommand{}
	case "reorderPlayers":
		cmd = &reorderPlayersCommand{}
	case "startCombat":
		cmd = &startCombatCommand{}
	case "updateCombat":
		cmd = &updateCombatCommand{}
	case "endCombat":
		cmd = &endCombatCommand{}
	case "dieInCombat":
		cmd = &dieInCombatCommand{}
	case "sendHelperRequest":
		cmd = &sendHelperRequestCommand{}
	case "respondHelperRequest":
		cmd = &respondHelperRequestCommand{}
	case "cancelHelperRequest":
		cmd = &cancelHelperRequestCommand{}
	case "removeHelper":
		cmd = &removeHelperCommand{}
	case "addCombatTime":
		cmd = &addCombatTimeCommand{}
	case "endGame":
		cmd = &endGameCommand{}
	case "setMaxLevel":
		cmd = &setMaxLevelCommand{}
	case "kickPlayer":
		cmd = &kickPlayerCommand{}
	default:
		return nil, state.Validationf("unknown command type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, state.Validationf("malformed %s payload: %v", env.Type, err)
		}
	}
	if v, ok := cmd.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", env.Type, err)
		}
	}
	return cmd, nil
}

type updatePlayerCommand struct {
	PlayerName *string `json:"name,omitempty"`

	IsReady  *bool     `json:"isReady,omitempty"`
	Level    *int      `json:"level,omitempty"`
	Debuff   *int      `json:"debuff,omitempty"`
	Sex      *string   `json:"sex,omitempty"`
	Race     *string   `json:"race,omitempty"`
	Class    *string   `json:"class,omitempty"`
	Head     *int      `json:"head,omitempty"`
	Armor    *int      `json:"armor,omitempty"`
	Hands    *int      `json:"hands,omitempty"`
	Feet     *int      `json:"feet,omitempty"`
	Mount    *int      `json:"mount,omitempty"`
	Backpack *[]string `json:"backpack,omitempty"`
}

func (c *updatePlayerCommand) Name() string { return "updatePlayer" }

func (c *updatePlayerCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.UpdatePlayer(ctx, sessionID, issuerID, issuerID, session.PlayerUpdate{
		Name: c.PlayerName, IsReady: c.IsReady,
		Level: c.Level, Debuff: c.Debuff, Sex: c.Sex, Race: c.Race, Class: c.Class,
		Head: c.Head, Armor: c.Armor, Hands: c.Hands, Feet: c.Feet, Mount: c.Mount,
		Backpack: c.Backpack,
	})
}

type setGearCommand struct {
	Slot  string `json:"slot"`
	Value int    `json:"value"`
}

func (c *setGearCommand) Name() string { return "setGear" }

func (c *setGearCommand) validate() error {
	if c.Slot == "" {
		return state.Validationf("gear slot is required")
	}
	return nil
}

func (c *setGearCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.SetGear(ctx, sessionID, issuerID, issuerID, c.Slot, c.Value)
}

type setLevelCommand struct {
	Level int `json:"level"`
}

func (c *setLevelCommand) Name() string { return "setLevel" }

func (c *setLevelCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.SetLevel(ctx, sessionID, issuerID, issuerID, c.Level)
}

type setReadyCommand struct {
	Ready bool `json:"ready"`
}

func (c *setReadyCommand) Name() string { return "setReady" }

func (c *setReadyCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.SetReady(ctx, sessionID, issuerID, issuerID, c.Ready)
}

type startGameCommand struct{}

func (c *startGameCommand) Name() string { return "startGame" }

func (c *startGameCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.StartGame(ctx, sessionID, issuerID)
}

type nextTurnCommand struct{}

func (c *nextTurnCommand) Name() string { return "nextTurn" }

func (c *nextTurnCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.NextTurn(ctx, sessionID, issuerID)
}

type reorderPlayersCommand struct {
	Order []string `json:"order"`
}

func (c *reorderPlayersCommand) Name() string { return "reorderPlayers" }

func (c *reorderPlayersCommand) validate() error {
	if len(c.Order) == 0 {
		return state.Validationf("order must not be empty")
	}
	return nil
}

func (c *reorderPlayersCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.Reorder(ctx, sessionID, issuerID, c.Order)
}

type startCombatCommand struct{}

func (c *startCombatCommand) Name() string { return "startCombat" }

func (c *startCombatCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.StartCombat(ctx, sessionID, issuerID)
}

type updateCombatCommand struct {
	MonsterLevel     *int `json:"monsterLevel,omitempty"`
	MonsterModifiers *int `json:"monsterModifiers,omitempty"`
	PlayerModifiers  *int `json:"playerModifiers,omitempty"`
}

func (c *updateCombatCommand) Name() string { return "updateCombat" }

func (c *updateCombatCommand) validate() error {
	return combat.Adjustment{
		MonsterLevel:     c.MonsterLevel,
		MonsterModifiers: c.MonsterModifiers,
		PlayerModifiers:  c.PlayerModifiers,
	}.Validate()
}

func (c *updateCombatCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.UpdateCombat(ctx, sessionID, issuerID, combat.Adjustment{
		MonsterLevel:     c.MonsterLevel,
		MonsterModifiers: c.MonsterModifiers,
		PlayerModifiers:  c.PlayerModifiers,
	})
}

type endCombatCommand struct {
	Won bool `json:"won"`
}

func (c *endCombatCommand) Name() string { return "endCombat" }

func (c *endCombatCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.EndCombat(ctx, sessionID, issuerID, c.Won)
}

type dieInCombatCommand struct{}

func (c *dieInCombatCommand) Name() string { return "dieInCombat" }

func (c *dieInCombatCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.DieInCombat(ctx, sessionID, issuerID, issuerID)
}

type sendHelperRequestCommand struct {
	ToID string `json:"toId"`
}

func (c *sendHelperRequestCommand) Name() string { return "sendHelperRequest" }

func (c *sendHelperRequestCommand) validate() error {
	if c.ToID == "" {
		return state.Validationf("toId is required")
	}
	return nil
}

func (c *sendHelperRequestCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.SendHelperRequest(ctx, sessionID, issuerID, c.ToID)
}

type respondHelperRequestCommand struct {
	Status state.HelperRequestStatus `json:"status"`
}

func (c *respondHelperRequestCommand) Name() string { return "respondHelperRequest" }

func (c *respondHelperRequestCommand) validate() error {
	if c.Status != state.HelperAccepted && c.Status != state.HelperDeclined {
		return state.Validationf("status must be accepted or declined, got %q", c.Status)
	}
	return nil
}

func (c *respondHelperRequestCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.RespondHelperRequest(ctx, sessionID, issuerID, c.Status)
}

type cancelHelperRequestCommand struct{}

func (c *cancelHelperRequestCommand) Name() string { return "cancelHelperRequest" }

func (c *cancelHelperRequestCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.CancelHelperRequest(ctx, sessionID, issuerID)
}

type removeHelperCommand struct{}

func (c *removeHelperCommand) Name() string { return "removeHelper" }

func (c *removeHelperCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.RemoveHelper(ctx, sessionID, issuerID)
}

type addCombatTimeCommand struct {
	Seconds int `json:"seconds"`
}

func (c *addCombatTimeCommand) Name() string { return "addCombatTime" }

func (c *addCombatTimeCommand) validate() error {
	if c.Seconds == 0 {
		return state.Validationf("seconds must be non-zero")
	}
	return nil
}

func (c *addCombatTimeCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.AddCombatTime(ctx, sessionID, issuerID, c.Seconds)
}

type endGameCommand struct {
	WinnerID string `json:"winnerId"`
}

func (c *endGameCommand) Name() string { return "endGame" }

func (c *endGameCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.EndGame(ctx, sessionID, issuerID, c.WinnerID)
}

type setMaxLevelCommand struct {
	MaxLevel int `json:"maxLevel"`
}

func (c *setMaxLevelCommand) Name() string { return "setMaxLevel" }

func (c *setMaxLevelCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.SetMaxLevel(ctx, sessionID, issuerID, c.MaxLevel)
}

type kickPlayerCommand struct {
	PlayerID string `json:"playerId"`
}

func (c *kickPlayerCommand) Name() string { return "kickPlayer" }

func (c *kickPlayerCommand) validate() error {
	if c.PlayerID == "" {
		return state.Validationf("playerId is required")
	}
	return nil
}

func (c *kickPlayerCommand) Apply(ctx context.Context, repo *session.Repository, sessionID, issuerID string) error {
	return repo.KickPlayer(ctx, sessionID, issuerID, c.PlayerID)
}
