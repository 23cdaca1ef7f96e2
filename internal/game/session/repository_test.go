package session_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/config"
	"github.com/munchkin-companion/server/internal/game/combat"
	"github.com/munchkin-companion/server/internal/game/session"
	"github.com/munchkin-companion/server/internal/game/state"
	"github.com/munchkin-companion/server/internal/store"
)

type fakeRecorder struct {
	mu      sync.Mutex
	entries []state.GameHistoryEntry
}

func (f *fakeRecorder) Record(_ context.Context, e state.GameHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRecorder) recorded() []state.GameHistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.GameHistoryEntry(nil), f.entries...)
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		CombatSeconds:      180,
		CombatTimeStep:     30,
		CombatMinRemaining: 30,
		DefaultMaxLevel:    10,
	}
}

// newTestRepo builds a repository on a fresh in-memory store with a frozen
// clock and a deterministic id sequence.
func newTestRepo(t *testing.T, opts ...session.Option) (*session.Repository, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	seq := 0
	base := []session.Option{
		session.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
		session.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("MUNCH-TS%02d", seq)
		}),
	}
	r := session.NewRepository(store.NewMemory(), rec, zap.NewNop(), testGameConfig(), append(base, opts...)...)
	return r, rec
}

func mustCreate(t *testing.T, r *session.Repository, maxLevel int) string {
	t.Helper()
	id, err := r.Create(context.Background(), "host", "Ana", maxLevel)
	require.NoError(t, err)
	return id
}

func mustGet(t *testing.T, r *session.Repository, id string) *state.GameSession {
	t.Helper()
	g, err := r.Get(context.Background(), id)
	require.NoError(t, err)
	return g
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	id, err := r.Create(ctx, "host", "Ana", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "MUNCH-"))

	g := mustGet(t, r, id)
	assert.Equal(t, "host", g.Meta.HostID)
	assert.Equal(t, state.StatusLobby, g.Meta.Status)
	assert.Equal(t, 10, g.Meta.MaxLevel, "zero selects the configured default")
	assert.Equal(t, int64(1700000000000), g.Meta.CreatedAt)
	assert.Equal(t, []string{"host"}, g.TurnState.TurnOrder)
	assert.Equal(t, "host", g.TurnState.ActivePlayerID)
	assert.Equal(t, 0, g.TurnState.TurnNumber)
	require.Contains(t, g.Players, "host")
	assert.Equal(t, "Ana", g.Players["host"].Name)
	assert.Equal(t, 1, g.Players["host"].Attributes.Level)
}

func TestCreate_Rejections(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	_, err := r.Create(ctx, "", "Ana", 0)
	require.Error(t, err)
	_, err = r.Create(ctx, "host", "", 0)
	require.Error(t, err)
	_, err = r.Create(ctx, "host", "Ana", 1)
	require.Error(t, err, "below minimum winning level")
	_, err = r.Create(ctx, "host", "Ana", 31)
	require.Error(t, err, "above maximum winning level")
}

func TestCreate_RetriesOnIDCollision(t *testing.T) {
	ctx := context.Background()
	ids := []string{"MUNCH-SAME", "MUNCH-SAME", "MUNCH-SAME", "MUNCH-FREE"}
	seq := 0
	r, _ := newTestRepo(t, session.WithIDGenerator(func() string {
		id := ids[seq%len(ids)]
		seq++
		return id
	}))

	first, err := r.Create(ctx, "h1", "Ana", 0)
	require.NoError(t, err)
	assert.Equal(t, "MUNCH-SAME", first)

	second, err := r.Create(ctx, "h2", "Bruno", 0)
	require.NoError(t, err)
	assert.Equal(t, "MUNCH-FREE", second, "colliding ids are skipped")

	g := mustGet(t, r, "MUNCH-SAME")
	assert.Equal(t, "h1", g.Meta.HostID, "first creator keeps the id")
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	g := mustGet(t, r, id)
	assert.Equal(t, []string{"host", "p2"}, g.TurnState.TurnOrder)
	assert.Equal(t, "Bruno", g.Players["p2"].Name)

	// Rejoining with the same id changes nothing.
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	g = mustGet(t, r, id)
	assert.Len(t, g.Players, 2)
	assert.Equal(t, []string{"host", "p2"}, g.TurnState.TurnOrder)
}

func TestJoin_Rejections(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	require.Error(t, r.Join(ctx, id, "", "Bruno"))
	require.Error(t, r.Join(ctx, id, "p2", ""))
	require.ErrorIs(t, r.Join(ctx, "MUNCH-ZZZZ", "p2", "Bruno"), state.ErrSessionNotFound)
}

func TestJoin_LateEntryAnyStatus(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.StartGame(ctx, id, "host"))

	// A brand-new player can still enter a running game.
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	g := mustGet(t, r, id)
	assert.Equal(t, state.StatusInGame, g.Meta.Status)
	assert.Equal(t, []string{"host", "p2"}, g.TurnState.TurnOrder)
	assert.Equal(t, "host", g.TurnState.ActivePlayerID, "turn keeps its owner")
	assert.Equal(t, 1, g.Players["p2"].Attributes.Level)

	// An ended game still admits joiners, for spectating the result.
	require.NoError(t, r.EndGame(ctx, id, "host", "host"))
	require.NoError(t, r.Join(ctx, id, "p3", "Carla"))
	g = mustGet(t, r, id)
	assert.Equal(t, state.StatusEnded, g.Meta.Status)
	assert.Contains(t, g.Players, "p3")
}

func TestJoin_ReconnectionByName(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.SetGear(ctx, id, "p2", "p2", "armor", 3))
	require.NoError(t, r.StartGame(ctx, id, "host"))

	// Bruno becomes the accepted combat helper, then drops and returns
	// with a fresh device id.
	require.NoError(t, r.StartCombat(ctx, id, "host"))
	require.NoError(t, r.SendHelperRequest(ctx, id, "host", "p2"))
	require.NoError(t, r.RespondHelperRequest(ctx, id, "p2", state.HelperAccepted))

	require.NoError(t, r.Join(ctx, id, "p2-new", "Bruno"))

	g := mustGet(t, r, id)
	assert.NotContains(t, g.Players, "p2")
	require.Contains(t, g.Players, "p2-new")
	assert.Equal(t, 3, g.Players["p2-new"].Gear.Armor, "profile survives the rename")
	assert.Equal(t, []string{"host", "p2-new"}, g.TurnState.TurnOrder)
	require.NotNil(t, g.CombatState.HelperID)
	assert.Equal(t, "p2-new", *g.CombatState.HelperID)
	assert.Equal(t, "host", g.Meta.HostID, "unrelated references untouched")
}

func TestJoin_HostReconnection(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.StartGame(ctx, id, "host"))

	require.NoError(t, r.Join(ctx, id, "host-new", "Ana"))

	g := mustGet(t, r, id)
	assert.Equal(t, "host-new", g.Meta.HostID)
	assert.Equal(t, "host-new", g.TurnState.ActivePlayerID)
	assert.Equal(t, []string{"host-new", "p2"}, g.TurnState.TurnOrder)
}

func TestStartGameAndRotation(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))

	require.NoError(t, r.StartGame(ctx, id, "host"))
	g := mustGet(t, r, id)
	assert.Equal(t, state.StatusInGame, g.Meta.Status)
	assert.Equal(t, "host", g.TurnState.ActivePlayerID)
	assert.Equal(t, 1, g.TurnState.TurnNumber)

	require.NoError(t, r.NextTurn(ctx, id, "host"))
	g = mustGet(t, r, id)
	assert.Equal(t, "p2", g.TurnState.ActivePlayerID)
	assert.Equal(t, 2, g.TurnState.TurnNumber)

	require.NoError(t, r.NextTurn(ctx, id, "p2"))
	g = mustGet(t, r, id)
	assert.Equal(t, "host", g.TurnState.ActivePlayerID, "rotation wraps")
}

func TestNextTurn_BlockedDuringCombat(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.NoError(t, r.StartCombat(ctx, id, "host"))

	err := r.NextTurn(ctx, id, "host")
	require.Error(t, err)
	assert.True(t, state.IsValidation(err))
}

func TestCapabilityChecks(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))

	monsterLevel := 3
	tests := []struct {
		name string
		op   func() error
	}{
		{"start game by guest", func() error { return r.StartGame(ctx, id, "p2") }},
		{"reorder by guest", func() error { return r.Reorder(ctx, id, "p2", []string{"p2", "host"}) }},
		{"end game by guest", func() error { return r.EndGame(ctx, id, "p2", "") }},
		{"set max level by guest", func() error { return r.SetMaxLevel(ctx, id, "p2", 15) }},
		{"kick by guest", func() error { return r.KickPlayer(ctx, id, "p2", "host") }},
		{"combat start by inactive", func() error { return r.StartCombat(ctx, id, "p2") }},
		{"combat update by inactive", func() error {
			return r.UpdateCombat(ctx, id, "p2", combat.Adjustment{MonsterLevel: &monsterLevel})
		}},
		{"combat end by inactive", func() error { return r.EndCombat(ctx, id, "p2", true) }},
		{"next turn by inactive", func() error { return r.NextTurn(ctx, id, "p2") }},
		{"helper request by inactive", func() error { return r.SendHelperRequest(ctx, id, "p2", "host") }},
		{"helper cancel by inactive", func() error { return r.CancelHelperRequest(ctx, id, "p2") }},
		{"helper removal by inactive", func() error { return r.RemoveHelper(ctx, id, "p2") }},
		{"death declared for someone else", func() error { return r.DieInCombat(ctx, id, "host", "p2") }},
		{"profile edit of someone else", func() error {
			return r.SetLevel(ctx, id, "host", "p2", 3)
		}},
		{"timer adjust by outsider", func() error { return r.AddCombatTime(ctx, id, "ghost", 30) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.op(), session.ErrForbidden)
		})
	}
}

func TestCombatVictoryRecordsHistoryOnce(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRepo(t)
	id := mustCreate(t, r, 2)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.StartGame(ctx, id, "host"))

	// Level 1 host wins one combat: level 2 is the winning level.
	require.NoError(t, r.StartCombat(ctx, id, "host"))
	require.NoError(t, r.EndCombat(ctx, id, "host", true))

	g := mustGet(t, r, id)
	assert.Equal(t, state.StatusEnded, g.Meta.Status)
	assert.Equal(t, "host", g.Meta.WinnerID)
	assert.Equal(t, 2, g.Players["host"].Attributes.Level)
	assert.False(t, g.CombatState.IsActive)

	entries := rec.recorded()
	require.Len(t, entries, 1, "exactly one record per ended game")
	assert.Equal(t, id, entries[0].GameID)
	assert.Equal(t, "host", entries[0].WinnerID)
	assert.Equal(t, "Ana", entries[0].WinnerName)
	assert.Equal(t, 2, entries[0].MaxLevel)
	assert.ElementsMatch(t, []string{"Ana", "Bruno"}, entries[0].PlayerNames)
}

func TestCombatWinBelowMaxJustLevels(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRepo(t)
	id := mustCreate(t, r, 10)
	require.NoError(t, r.StartGame(ctx, id, "host"))

	require.NoError(t, r.StartCombat(ctx, id, "host"))
	require.NoError(t, r.EndCombat(ctx, id, "host", true))

	g := mustGet(t, r, id)
	assert.Equal(t, state.StatusInGame, g.Meta.Status)
	assert.Equal(t, 2, g.Players["host"].Attributes.Level)
	assert.Empty(t, rec.recorded())
}

func TestCombatFlee(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.NoError(t, r.StartCombat(ctx, id, "host"))

	monsterLevel := 8
	require.NoError(t, r.UpdateCombat(ctx, id, "host", combat.Adjustment{MonsterLevel: &monsterLevel}))
	require.NoError(t, r.EndCombat(ctx, id, "host", false))

	g := mustGet(t, r, id)
	assert.False(t, g.CombatState.IsActive)
	assert.Equal(t, state.PhaseExploration, g.TurnState.Phase)
	assert.Equal(t, 1, g.CombatState.MonsterLevel, "combat fields reset")
	assert.Equal(t, 1, g.Players["host"].Attributes.Level, "no level on flee")
}

func TestDieInCombat(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.SetGear(ctx, id, "p2", "p2", "armor", 4))
	require.NoError(t, r.SetGear(ctx, id, "p2", "p2", "mount", 2))
	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.NoError(t, r.StartCombat(ctx, id, "host"))

	require.NoError(t, r.DieInCombat(ctx, id, "p2", "p2"))

	g := mustGet(t, r, id)
	assert.False(t, g.CombatState.IsActive)
	p := g.Players["p2"]
	assert.Equal(t, 0, p.Gear.Armor)
	assert.Equal(t, 2, p.Gear.Mount, "mount survives death")
	assert.Empty(t, p.Gear.Backpack)
	assert.Equal(t, 1, p.Attributes.Level, "level survives death")
}

func TestDieOutsideCombatRejected(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.StartGame(ctx, id, "host"))

	err := r.DieInCombat(ctx, id, "host", "host")
	require.Error(t, err)
	assert.True(t, state.IsValidation(err))
}

func TestAddCombatTime(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.NoError(t, r.StartCombat(ctx, id, "host"))

	// Any player at the table can feed or starve the countdown.
	require.NoError(t, r.AddCombatTime(ctx, id, "p2", 30))
	require.NoError(t, r.AddCombatTime(ctx, id, "host", -30))

	g := mustGet(t, r, id)
	assert.Equal(t, 0, g.CombatState.CombatExtraSeconds)

	require.Error(t, r.AddCombatTime(ctx, id, "p2", 17), "off-step delta")
}

func TestEndGame(t *testing.T) {
	ctx := context.Background()
	r, rec := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.StartGame(ctx, id, "host"))

	require.NoError(t, r.EndGame(ctx, id, "host", "p2"))

	g := mustGet(t, r, id)
	assert.Equal(t, state.StatusEnded, g.Meta.Status)
	assert.Equal(t, "p2", g.Meta.WinnerID)

	entries := rec.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, "Bruno", entries[0].WinnerName)

	err := r.EndGame(ctx, id, "host", "p2")
	require.Error(t, err, "already ended")
	assert.True(t, state.IsValidation(err))
	assert.Len(t, rec.recorded(), 1, "no second record")
}

func TestEndGame_UnknownWinnerRejected(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	err := r.EndGame(ctx, id, "host", "ghost")
	require.Error(t, err)
	assert.True(t, state.IsValidation(err))
}

func TestSetMaxLevel(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	require.NoError(t, r.SetMaxLevel(ctx, id, "host", 15))
	assert.Equal(t, 15, mustGet(t, r, id).Meta.MaxLevel)

	require.Error(t, r.SetMaxLevel(ctx, id, "host", 1))
	require.Error(t, r.SetMaxLevel(ctx, id, "host", 31))
}

func TestKickPlayer(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.Join(ctx, id, "p3", "Carla"))
	require.NoError(t, r.StartGame(ctx, id, "host"))

	require.NoError(t, r.KickPlayer(ctx, id, "host", "p2"))

	g := mustGet(t, r, id)
	assert.NotContains(t, g.Players, "p2")
	assert.Equal(t, []string{"host", "p3"}, g.TurnState.TurnOrder)
	assert.Equal(t, "host", g.TurnState.ActivePlayerID)
	require.NotNil(t, g.TurnState.TurnIndex)
	assert.Equal(t, 0, *g.TurnState.TurnIndex)
}

func TestKickActivePlayerPassesTurnAndClosesCombat(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.Join(ctx, id, "p3", "Carla"))
	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.NoError(t, r.NextTurn(ctx, id, "host")) // active: p2
	require.NoError(t, r.StartCombat(ctx, id, "p2"))

	require.NoError(t, r.KickPlayer(ctx, id, "host", "p2"))

	g := mustGet(t, r, id)
	assert.NotContains(t, g.Players, "p2")
	assert.Equal(t, "p3", g.TurnState.ActivePlayerID, "turn passes to the next in order")
	assert.False(t, g.CombatState.IsActive, "orphaned combat closes")
	assert.Equal(t, state.PhaseExploration, g.TurnState.Phase)
}

func TestKick_Rejections(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	err := r.KickPlayer(ctx, id, "host", "host")
	require.Error(t, err, "host cannot kick themselves")
	require.ErrorIs(t, r.KickPlayer(ctx, id, "host", "ghost"), state.ErrPlayerNotFound)
}

func TestUpdatePlayer(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	race := "Elfo"
	class := "Mago"
	sex := "F"
	debuff := 2
	hands := 1
	backpack := []string{"Poción"}
	require.NoError(t, r.UpdatePlayer(ctx, id, "host", "host", session.PlayerUpdate{
		Race: &race, Class: &class, Sex: &sex, Debuff: &debuff, Hands: &hands, Backpack: &backpack,
	}))

	p := mustGet(t, r, id).Players["host"]
	assert.Equal(t, "Elfo", p.Attributes.Race)
	assert.Equal(t, "Mago", p.Attributes.Class)
	assert.Equal(t, "F", p.Attributes.Sex)
	assert.Equal(t, 2, p.Attributes.Debuff)
	assert.Equal(t, 1, p.Gear.Hands)
	assert.Equal(t, []string{"Poción"}, p.Gear.Backpack)
	assert.Equal(t, "Ana", p.Name, "untouched fields survive")
}

func TestUpdatePlayer_Rejections(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))

	require.Error(t, r.UpdatePlayer(ctx, id, "host", "host", session.PlayerUpdate{}), "empty update")

	level := 11
	require.Error(t, r.UpdatePlayer(ctx, id, "host", "host", session.PlayerUpdate{Level: &level}), "above max level")

	sex := "X"
	require.Error(t, r.UpdatePlayer(ctx, id, "host", "host", session.PlayerUpdate{Sex: &sex}))

	taken := "Bruno"
	err := r.UpdatePlayer(ctx, id, "host", "host", session.PlayerUpdate{Name: &taken})
	require.Error(t, err, "names are the reconnection key and must stay unique")
	assert.True(t, state.IsValidation(err))
}

func TestSetLevelClamps(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 10)

	require.NoError(t, r.SetLevel(ctx, id, "host", "host", 99))
	assert.Equal(t, 10, mustGet(t, r, id).Players["host"].Attributes.Level)

	require.NoError(t, r.SetLevel(ctx, id, "host", "host", -3))
	assert.Equal(t, 1, mustGet(t, r, id).Players["host"].Attributes.Level)
}

func TestSetGear_Rejections(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	require.Error(t, r.SetGear(ctx, id, "host", "host", "hat", 1), "unknown slot")
	require.Error(t, r.SetGear(ctx, id, "host", "host", "head", -1), "negative bonus")
}

func TestSetReady(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	require.NoError(t, r.SetReady(ctx, id, "host", "host", true))
	assert.True(t, mustGet(t, r, id).Players["host"].IsReady)

	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.Error(t, r.SetReady(ctx, id, "host", "host", false), "lobby only")
}

func TestHelperHandshakeEndToEnd(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)
	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	require.NoError(t, r.StartGame(ctx, id, "host"))
	require.NoError(t, r.StartCombat(ctx, id, "host"))

	require.NoError(t, r.SendHelperRequest(ctx, id, "host", "p2"))
	g := mustGet(t, r, id)
	require.NotNil(t, g.CombatState.HelperRequest)
	assert.Equal(t, state.HelperPending, g.CombatState.HelperRequest.Status)

	require.NoError(t, r.RespondHelperRequest(ctx, id, "p2", state.HelperAccepted))
	g = mustGet(t, r, id)
	require.NotNil(t, g.CombatState.HelperID)
	assert.Equal(t, "p2", *g.CombatState.HelperID)
	assert.Nil(t, g.CombatState.HelperRequest)

	require.NoError(t, r.RemoveHelper(ctx, id, "host"))
	g = mustGet(t, r, id)
	assert.Nil(t, g.CombatState.HelperID)
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	id := mustCreate(t, r, 0)

	versions := make(chan *state.GameSession, 16)
	cancel, err := r.Watch(id, func(g *state.GameSession) { versions <- g })
	require.NoError(t, err)
	defer cancel()

	select {
	case g := <-versions:
		require.NotNil(t, g)
		assert.Equal(t, state.StatusLobby, g.Meta.Status)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, r.Join(ctx, id, "p2", "Bruno"))
	select {
	case g := <-versions:
		require.NotNil(t, g)
		assert.Contains(t, g.Players, "p2")
	case <-time.After(time.Second):
		t.Fatal("no update delivery")
	}
}
