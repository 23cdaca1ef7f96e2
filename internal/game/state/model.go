// Package state defines the shared game session document: the schema every
// client observes and every mutation rewrites. Field names match the
// persisted wire format exactly.
package state

// Status is the session lifecycle state.
type Status string

// Session lifecycle states.
const (
	StatusLobby  Status = "LOBBY"
	StatusInGame Status = "IN_GAME"
	StatusEnded  Status = "ENDED"
)

// Phase is the turn phase of the active player.
type Phase string

// Turn phases.
const (
	PhaseExploration Phase = "EXPLORATION"
	PhaseCombat      Phase = "COMBAT"
)

// HelperRequestStatus is the state of a combat helper invitation.
type HelperRequestStatus string

// Helper invitation states.
const (
	HelperPending  HelperRequestStatus = "pending"
	HelperAccepted HelperRequestStatus = "accepted"
	HelperDeclined HelperRequestStatus = "declined"
)

// Meta holds session-wide metadata.
type Meta struct {
	// HostID is the player id of the session creator.
	HostID string `json:"hostId"`
	// CreatedAt is the creation time in epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
	// Status is the session lifecycle state.
	Status Status `json:"status"`
	// WinnerID is set when Status is ENDED and a winner exists.
	WinnerID string `json:"winnerId,omitempty"`
	// MaxLevel is the level that wins the game, 2..30.
	MaxLevel int `json:"maxLevel"`
}

// TurnState tracks whose turn it is and where in the rotation they sit.
type TurnState struct {
	ActivePlayerID string `json:"activePlayerId"`
	Phase          Phase  `json:"phase"`
	// TurnNumber is monotonic: 0 in the lobby, 1 at game start.
	TurnNumber int `json:"turnNumber"`
	// TurnOrder is a permutation of the players map keys. Sessions written
	// by old clients may lack it; see EffectiveTurnOrder.
	TurnOrder []string `json:"turnOrder,omitempty"`
	// TurnIndex is the position of ActivePlayerID within TurnOrder. Stored
	// rather than recomputed so that a concurrent reorder cannot skip or
	// repeat a turn. May be absent in documents written by old clients.
	TurnIndex *int `json:"turnIndex,omitempty"`
}

// HelperRequest is a pending or answered combat helper invitation.
type HelperRequest struct {
	FromID string              `json:"fromId"`
	ToID   string              `json:"toId"`
	Status HelperRequestStatus `json:"status"`
}

// CombatState holds the fields of an in-progress combat.
type CombatState struct {
	IsActive         bool `json:"isActive"`
	MonsterLevel     int  `json:"monsterLevel"`
	MonsterModifiers int  `json:"monsterModifiers"`
	PlayerModifiers  int  `json:"playerModifiers"`
	// HelperID references a player other than the active player, or nil.
	HelperID *string `json:"helperId"`
	// CombatStartedAt is the countdown epoch start in milliseconds.
	CombatStartedAt *int64 `json:"combatStartedAt,omitempty"`
	// CombatExtraSeconds accumulates signed timer adjustments.
	CombatExtraSeconds int            `json:"combatExtraSeconds,omitempty"`
	HelperRequest      *HelperRequest `json:"helperRequest,omitempty"`
}

// Attributes are the rule-relevant player attributes.
type Attributes struct {
	// Level is clamped to [1, Meta.MaxLevel].
	Level int `json:"level"`
	// Debuff is a non-negative strength penalty.
	Debuff int    `json:"debuff"`
	Sex    string `json:"sex"`
	Race   string `json:"race"`
	Class  string `json:"class"`
}

// Gear holds equipped bonuses per slot plus carried items.
type Gear struct {
	Head     int      `json:"head"`
	Armor    int      `json:"armor"`
	Hands    int      `json:"hands"`
	Feet     int      `json:"feet"`
	Mount    int      `json:"mount"`
	Backpack []string `json:"backpack,omitempty"`
}

// PlayerProfile is one player's entry in the session document.
type PlayerProfile struct {
	Name       string     `json:"name"`
	IsReady    bool       `json:"isReady"`
	Attributes Attributes `json:"attributes"`
	Gear       Gear       `json:"gear"`
}

// GameSession is the complete shared document for one match.
type GameSession struct {
	Meta        Meta                     `json:"meta"`
	TurnState   TurnState                `json:"turnState"`
	CombatState CombatState              `json:"combatState"`
	Players     map[string]PlayerProfile `json:"players"`
}

// GameHistoryEntry is the immutable record appended when a session ends.
type GameHistoryEntry struct {
	GameID      string   `json:"gameId"`
	CreatedAt   int64    `json:"createdAt"`
	EndedAt     int64    `json:"endedAt"`
	WinnerID    string   `json:"winnerId,omitempty"`
	WinnerName  string   `json:"winnerName,omitempty"`
	MaxLevel    int      `json:"maxLevel"`
	PlayerNames []string `json:"playerNames"`
}

// NewPlayerProfile returns the profile a freshly joined player starts with.
func NewPlayerProfile(name string) PlayerProfile {
	return PlayerProfile{
		Name:    name,
		IsReady: false,
		Attributes: Attributes{
			Level:  1,
			Debuff: 0,
			Sex:    "M",
			Race:   "Humano",
			Class:  "Ninguna",
		},
		Gear: Gear{},
	}
}

// Player returns the profile for id. Cross-references can dangle transiently
// after a race, so a missing id is reported rather than assumed impossible.
func (g *GameSession) Player(id string) (PlayerProfile, bool) {
	if g == nil || id == "" {
		return PlayerProfile{}, false
	}
	p, ok := g.Players[id]
	return p, ok
}

// Helper returns the current combat helper's profile, if a valid one is set.
func (g *GameSession) Helper() (PlayerProfile, bool) {
	if g == nil || g.CombatState.HelperID == nil {
		return PlayerProfile{}, false
	}
	return g.Player(*g.CombatState.HelperID)
}

// EffectiveTurnOrder returns the stored turn order, falling back to the
// players map keys for documents written before turnOrder existed.
func (g *GameSession) EffectiveTurnOrder() []string {
	if len(g.TurnState.TurnOrder) > 0 {
		return g.TurnState.TurnOrder
	}
	order := make([]string, 0, len(g.Players))
	for id := range g.Players {
		order = append(order, id)
	}
	return order
}

// EffectiveTurnIndex returns the stored turn index when present. The legacy
// fallback searches the order for the active player; it is only correct in
// the absence of concurrent reorders, which is why the index is stored.
func (g *GameSession) EffectiveTurnIndex(order []string) int {
	if g.TurnState.TurnIndex != nil {
		return *g.TurnState.TurnIndex
	}
	for i, id := range order {
		if id == g.TurnState.ActivePlayerID {
			return i
		}
	}
	return 0
}
