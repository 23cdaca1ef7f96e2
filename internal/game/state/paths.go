package state

// Store path layout. All session data lives under "games/<sessionID>";
// ended-game records live under the independent "history" collection.

// HistoryPath is the append-only collection of ended games.
const HistoryPath = "history"

// SessionPath returns the root path of a session document.
func SessionPath(sessionID string) string {
	return "games/" + sessionID
}

// MetaPath returns the path of the session metadata node.
func MetaPath(sessionID string) string {
	return SessionPath(sessionID) + "/meta"
}

// MetaHostIDPath returns the path of the host id field.
func MetaHostIDPath(sessionID string) string {
	return MetaPath(sessionID) + "/hostId"
}

// MetaStatusPath returns the path of the lifecycle status field.
func MetaStatusPath(sessionID string) string {
	return MetaPath(sessionID) + "/status"
}

// MetaWinnerIDPath returns the path of the winner id field.
func MetaWinnerIDPath(sessionID string) string {
	return MetaPath(sessionID) + "/winnerId"
}

// MetaMaxLevelPath returns the path of the winning level field.
func MetaMaxLevelPath(sessionID string) string {
	return MetaPath(sessionID) + "/maxLevel"
}

// TurnStatePath returns the path of the turn state node.
func TurnStatePath(sessionID string) string {
	return SessionPath(sessionID) + "/turnState"
}

// ActivePlayerIDPath returns the path of the active player id field.
func ActivePlayerIDPath(sessionID string) string {
	return TurnStatePath(sessionID) + "/activePlayerId"
}

// PhasePath returns the path of the turn phase field.
func PhasePath(sessionID string) string {
	return TurnStatePath(sessionID) + "/phase"
}

// TurnNumberPath returns the path of the turn number field.
func TurnNumberPath(sessionID string) string {
	return TurnStatePath(sessionID) + "/turnNumber"
}

// TurnOrderPath returns the path of the turn order sequence.
func TurnOrderPath(sessionID string) string {
	return TurnStatePath(sessionID) + "/turnOrder"
}

// TurnIndexPath returns the path of the stored turn index.
func TurnIndexPath(sessionID string) string {
	return TurnStatePath(sessionID) + "/turnIndex"
}

// CombatStatePath returns the path of the combat state node.
func CombatStatePath(sessionID string) string {
	return SessionPath(sessionID) + "/combatState"
}

// CombatFieldPath returns the path of one combat state field.
func CombatFieldPath(sessionID, field string) string {
	return CombatStatePath(sessionID) + "/" + field
}

// PlayersPath returns the path of the players map.
func PlayersPath(sessionID string) string {
	return SessionPath(sessionID) + "/players"
}

// PlayerPath returns the path of one player's profile.
func PlayerPath(sessionID, playerID string) string {
	return PlayersPath(sessionID) + "/" + playerID
}

// PlayerLevelPath returns the path of a player's level.
func PlayerLevelPath(sessionID, playerID string) string {
	return PlayerPath(sessionID, playerID) + "/attributes/level"
}

// PlayerReadyPath returns the path of a player's ready flag.
func PlayerReadyPath(sessionID, playerID string) string {
	return PlayerPath(sessionID, playerID) + "/isReady"
}

// PlayerGearSlotPath returns the path of one gear slot value.
func PlayerGearSlotPath(sessionID, playerID, slot string) string {
	return PlayerPath(sessionID, playerID) + "/gear/" + slot
}

// PlayerBackpackPath returns the path of a player's backpack list.
func PlayerBackpackPath(sessionID, playerID string) string {
	return PlayerPath(sessionID, playerID) + "/gear/backpack"
}
