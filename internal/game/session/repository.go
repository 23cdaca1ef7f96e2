// Package session is the authoritative mutation layer for game sessions.
// Every rule-relevant change flows through Repository: it loads the current
// document, lets the pure game packages compute a patch, verifies that the
// issuer holds the capability for the operation, and commits the patch as a
// single atomic store batch.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/config"
	"github.com/munchkin-companion/server/internal/game/combat"
	"github.com/munchkin-companion/server/internal/game/state"
	"github.com/munchkin-companion/server/internal/game/turn"
	"github.com/munchkin-companion/server/internal/store"
)

// ErrForbidden is returned when the issuer lacks the capability for an
// operation: a non-host invoking a host action, or a non-active player
// driving the combat.
var ErrForbidden = errors.New("forbidden")

// Bounds for the configurable winning level.
const (
	minMaxLevel = 2
	maxMaxLevel = 30
)

// Recorder persists the record of an ended game.
type Recorder interface {
	Record(ctx context.Context, entry state.GameHistoryEntry) error
}

// Repository owns all session mutations. It is safe for concurrent use as
// long as mutations for one session are serialized by the caller; the
// server runs one actor goroutine per session for exactly that reason.
type Repository struct {
	store    store.Store
	recorder Recorder
	logger   *zap.Logger
	timer    combat.Timer

	defaultMaxLevel int

	now   func() time.Time
	newID func() string
}

// Option customizes a Repository.
type Option func(*Repository)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Repository) { r.newID = gen }
}

// NewRepository creates a Repository backed by st.
//
// Precondition: st, recorder, and logger must be non-nil.
func NewRepository(st store.Store, recorder Recorder, logger *zap.Logger, cfg config.GameConfig, opts ...Option) *Repository {
	r := &Repository{
		store:    st,
		recorder: recorder,
		logger:   logger,
		timer: combat.Timer{
			InitialSeconds: cfg.CombatSeconds,
			Step:           cfg.CombatTimeStep,
			MinRemaining:   cfg.CombatMinRemaining,
		},
		defaultMaxLevel: cfg.DefaultMaxLevel,
		now:             time.Now,
		newID:           newSessionID,
	}
	if r.timer.InitialSeconds <= 0 {
		r.timer = combat.DefaultTimer()
	}
	if r.defaultMaxLevel < minMaxLevel {
		r.defaultMaxLevel = 10
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timer returns the combat countdown rules this repository applies.
func (r *Repository) Timer() combat.Timer {
	return r.timer
}

// Create opens a new session with the given host and returns its id.
// maxLevel 0 selects the configured default.
//
// Postcondition: The stored document is a LOBBY containing only the host,
// with the host first in the turn order.
func (r *Repository) Create(ctx context.Context, hostID, hostName string, maxLevel int) (string, error) {
	if hostID == "" || hostName == "" {
		return "", state.Validationf("host id and name must not be empty")
	}
	if maxLevel == 0 {
		maxLevel = r.defaultMaxLevel
	}
	if maxLevel < minMaxLevel || maxLevel > maxMaxLevel {
		return "", state.Validationf("max level must be %d-%d, got %d", minMaxLevel, maxMaxLevel, maxLevel)
	}

	zero := 0
	doc := state.GameSession{
		Meta: state.Meta{
			HostID:    hostID,
			CreatedAt: r.now().UnixMilli(),
			Status:    state.StatusLobby,
			MaxLevel:  maxLevel,
		},
		TurnState: state.TurnState{
			ActivePlayerID: hostID,
			Phase:          state.PhaseExploration,
			TurnNumber:     0,
			TurnOrder:      []string{hostID},
			TurnIndex:      &zero,
		},
		CombatState: state.CombatState{MonsterLevel: 1},
		Players: map[string]state.PlayerProfile{
			hostID: state.NewPlayerProfile(hostName),
		},
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := r.newID()
		written, err := r.store.SetIfAbsent(ctx, state.SessionPath(id), doc)
		if err != nil {
			return "", fmt.Errorf("creating session: %w", err)
		}
		if written {
			r.logger.Info("session created",
				zap.String("session_id", id),
				zap.String("host_id", hostID),
				zap.Int("max_level", maxLevel),
			)
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a free session id after %d attempts", maxIDAttempts)
}

// Get returns the current session document.
func (r *Repository) Get(ctx context.Context, sessionID string) (*state.GameSession, error) {
	return r.load(ctx, sessionID)
}

// Watch subscribes fn to every version of the session document, starting
// with the current one. fn receives nil when the session is deleted. The
// returned function cancels the subscription.
func (r *Repository) Watch(sessionID string, fn func(*state.GameSession)) (func(), error) {
	return r.store.Subscribe(state.SessionPath(sessionID), func(v any) {
		g, err := state.DecodeSession(v)
		if err != nil {
			r.logger.Warn("skipping undecodable session version",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return
		}
		fn(g)
	})
}

// Join adds a player to the session, or reconnects them.
//
// The id a device presents is ephemeral, so returning players are matched
// by display name: when a profile with the same name exists, the join is a
// reconnection and every reference to the old id is rewritten to the new
// one in a single batch. Joining with an id already in the session is a
// no-op. Genuinely new players are admitted in any status, so latecomers
// can enter a running game and spectators can open an ended one.
func (r *Repository) Join(ctx context.Context, sessionID, playerID, playerName string) error {
	if playerID == "" || playerName == "" {
		return state.Validationf("player id and name must not be empty")
	}
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := g.Player(playerID); ok {
		return nil
	}

	if oldID, ok := matchProfileByName(g, playerName); ok {
		patch := reconnectPatch(g, sessionID, oldID, playerID)
		if err := r.store.Update(ctx, patch); err != nil {
			return fmt.Errorf("reconnecting player: %w", err)
		}
		r.logger.Info("player reconnected",
			zap.String("session_id", sessionID),
			zap.String("old_id", oldID),
			zap.String("new_id", playerID),
		)
		return nil
	}

	order := append(append([]string(nil), g.EffectiveTurnOrder()...), playerID)
	err = r.store.Update(ctx, map[string]any{
		state.PlayerPath(sessionID, playerID): state.NewPlayerProfile(playerName),
		state.TurnOrderPath(sessionID):        order,
	})
	if err != nil {
		return fmt.Errorf("joining session: %w", err)
	}
	r.logger.Info("player joined",
		zap.String("session_id", sessionID),
		zap.String("player_id", playerID),
	)
	return nil
}

// StartGame moves the lobby into play, with the first player in the turn
// order taking the first turn.
//
// Precondition: issuerID must be the host.
func (r *Repository) StartGame(ctx context.Context, sessionID, issuerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireHost(g, issuerID); err != nil {
		return err
	}
	order := g.EffectiveTurnOrder()
	if len(order) == 0 {
		return state.Validationf("cannot start a game with no players")
	}
	patch, err := turn.StartGame(g, sessionID, order[0])
	if err != nil {
		return err
	}
	if err := r.store.Update(ctx, patch); err != nil {
		return fmt.Errorf("starting game: %w", err)
	}
	r.logger.Info("game started",
		zap.String("session_id", sessionID),
		zap.Int("players", len(order)),
	)
	return nil
}

// NextTurn ends the active player's turn.
//
// Precondition: issuerID must be the active player and no combat may be
// running.
func (r *Repository) NextTurn(ctx context.Context, sessionID, issuerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	if g.CombatState.IsActive {
		return state.Validationf("finish the combat before ending the turn")
	}
	patch, err := turn.Advance(g, sessionID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "advancing turn", patch)
}

// Reorder replaces the turn order with a new permutation of the players.
//
// Precondition: issuerID must be the host.
func (r *Repository) Reorder(ctx context.Context, sessionID, issuerID string, newOrder []string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireHost(g, issuerID); err != nil {
		return err
	}
	patch, err := turn.Reorder(g, sessionID, newOrder, g.TurnState.ActivePlayerID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "reordering turns", patch)
}

// StartCombat opens a combat for the active player.
//
// Precondition: issuerID must be the active player.
func (r *Repository) StartCombat(ctx context.Context, sessionID, issuerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	patch, err := combat.Start(g, sessionID, r.now())
	if err != nil {
		return err
	}
	return r.apply(ctx, "starting combat", patch)
}

// UpdateCombat applies a validated adjustment to the running combat.
//
// Precondition: issuerID must be the active player.
func (r *Repository) UpdateCombat(ctx context.Context, sessionID, issuerID string, adj combat.Adjustment) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	patch, err := adj.Patch(g, sessionID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "adjusting combat", patch)
}

// EndCombat closes the running combat. A win levels the active player up;
// reaching the winning level ends the session and records it in the match
// history exactly once.
//
// Precondition: issuerID must be the active player.
func (r *Repository) EndCombat(ctx context.Context, sessionID, issuerID string, won bool) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	patch, entry, err := combat.End(g, sessionID, won, r.now())
	if err != nil {
		return err
	}
	if err := r.store.Update(ctx, patch); err != nil {
		return fmt.Errorf("ending combat: %w", err)
	}
	if entry == nil {
		return nil
	}
	if err := r.recorder.Record(ctx, *entry); err != nil {
		return fmt.Errorf("recording ended game: %w", err)
	}
	r.logger.Info("game won",
		zap.String("session_id", sessionID),
		zap.String("winner_id", entry.WinnerID),
	)
	return nil
}

// DieInCombat applies a player death: worn gear and backpack are lost, and
// the combat closes as a defeat.
//
// Precondition: Only the dying player may declare their own death.
func (r *Repository) DieInCombat(ctx context.Context, sessionID, issuerID, playerID string) error {
	if issuerID != playerID {
		return fmt.Errorf("%w: only %s can declare their own death", ErrForbidden, playerID)
	}
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !g.CombatState.IsActive {
		return state.Validationf("no active combat to die in")
	}
	patch, err := combat.Die(g, sessionID, playerID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "applying death", patch)
}

// SendHelperRequest invites toID to fight alongside the active player.
//
// Precondition: issuerID must be the active player.
func (r *Repository) SendHelperRequest(ctx context.Context, sessionID, issuerID, toID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	patch, err := combat.SendHelperRequest(g, sessionID, issuerID, toID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "sending helper request", patch)
}

// RespondHelperRequest answers the pending helper invitation.
//
// Precondition: issuerID must be the invited player.
func (r *Repository) RespondHelperRequest(ctx context.Context, sessionID, issuerID string, status state.HelperRequestStatus) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	req := g.CombatState.HelperRequest
	if req == nil || req.Status != state.HelperPending {
		return state.Validationf("no pending helper request to answer")
	}
	if issuerID != req.ToID {
		return fmt.Errorf("%w: only the invited player can answer", ErrForbidden)
	}
	patch, err := combat.RespondHelperRequest(g, sessionID, status)
	if err != nil {
		return err
	}
	return r.apply(ctx, "answering helper request", patch)
}

// CancelHelperRequest withdraws the pending helper invitation.
//
// Precondition: issuerID must be the active player.
func (r *Repository) CancelHelperRequest(ctx context.Context, sessionID, issuerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	patch, err := combat.CancelHelperRequest(g, sessionID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "cancelling helper request", patch)
}

// RemoveHelper dismisses the accepted combat helper.
//
// Precondition: issuerID must be the active player.
func (r *Repository) RemoveHelper(ctx context.Context, sessionID, issuerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireActive(g, issuerID); err != nil {
		return err
	}
	patch, err := combat.RemoveHelper(g, sessionID)
	if err != nil {
		return err
	}
	return r.apply(ctx, "removing helper", patch)
}

// AddCombatTime adjusts the shared countdown by delta seconds. Any player
// in the session may adjust the timer; the step and floor rules come from
// the configured Timer.
func (r *Repository) AddCombatTime(ctx context.Context, sessionID, issuerID string, delta int) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requirePlayer(g, issuerID); err != nil {
		return err
	}
	patch, err := r.timer.AddTime(g, sessionID, delta, r.now())
	if err != nil {
		return err
	}
	return r.apply(ctx, "adjusting combat timer", patch)
}

// EndGame force-ends the session with an optional chosen winner and records
// it in the match history.
//
// Precondition: issuerID must be the host; the session must not already be
// ENDED.
func (r *Repository) EndGame(ctx context.Context, sessionID, issuerID, winnerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireHost(g, issuerID); err != nil {
		return err
	}
	if g.Meta.Status == state.StatusEnded {
		return state.Validationf("game already ended")
	}
	if winnerID != "" {
		if _, ok := g.Player(winnerID); !ok {
			return state.Validationf("winner %s is not in this session", winnerID)
		}
	}

	patch := map[string]any{
		state.MetaStatusPath(sessionID): state.StatusEnded,
	}
	if winnerID != "" {
		patch[state.MetaWinnerIDPath(sessionID)] = winnerID
	}
	if err := r.store.Update(ctx, patch); err != nil {
		return fmt.Errorf("ending game: %w", err)
	}
	entry := combat.BuildHistoryEntry(g, sessionID, winnerID, r.now())
	if err := r.recorder.Record(ctx, entry); err != nil {
		return fmt.Errorf("recording ended game: %w", err)
	}
	r.logger.Info("game ended by host",
		zap.String("session_id", sessionID),
		zap.String("winner_id", winnerID),
	)
	return nil
}

// SetMaxLevel changes the winning level.
//
// Precondition: issuerID must be the host; the session must not be ENDED.
func (r *Repository) SetMaxLevel(ctx context.Context, sessionID, issuerID string, maxLevel int) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireHost(g, issuerID); err != nil {
		return err
	}
	if g.Meta.Status == state.StatusEnded {
		return state.Validationf("game already ended")
	}
	if maxLevel < minMaxLevel || maxLevel > maxMaxLevel {
		return state.Validationf("max level must be %d-%d, got %d", minMaxLevel, maxMaxLevel, maxLevel)
	}
	return r.apply(ctx, "setting max level", map[string]any{
		state.MetaMaxLevelPath(sessionID): maxLevel,
	})
}

// KickPlayer removes a player from the session. The profile, the turn order
// slot, and any combat role the player held all go in one batch; when the
// kicked player was mid-turn the turn passes to the next player in order
// and any running combat closes unresolved.
//
// Precondition: issuerID must be the host; the host cannot kick themselves.
func (r *Repository) KickPlayer(ctx context.Context, sessionID, issuerID, playerID string) error {
	g, err := r.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := requireHost(g, issuerID); err != nil {
		return err
	}
	if playerID == g.Meta.HostID {
		return state.Validationf("the host cannot be kicked")
	}
	if _, ok := g.Player(playerID); !ok {
		return fmt.Errorf("kicking %s: %w", playerID, state.ErrPlayerNotFound)
	}

	order := g.EffectiveTurnOrder()
	filtered := make([]string, 0, len(order))
	for _, id := range order {
		if id != playerID {
			filtered = append(filtered, id)
		}
	}

	patch := map[string]any{
		state.PlayerPath(sessionID, playerID): nil,
		state.TurnOrderPath(sessionID):        filtered,
	}

	if g.CombatState.HelperID != nil && *g.CombatState.HelperID == playerID {
		patch[state.CombatFieldPath(sessionID, "helperId")] = nil
	}
	if req := g.CombatState.HelperRequest; req != nil && (req.FromID == playerID || req.ToID == playerID) {
		patch[state.CombatFieldPath(sessionID, "helperRequest")] = nil
	}

	active := g.TurnState.ActivePlayerID
	switch {
	case active == playerID && len(filtered) > 0:
		idx := g.EffectiveTurnIndex(order)
		if idx < 0 || idx >= len(filtered) {
			idx = 0
		}
		patch[state.ActivePlayerIDPath(sessionID)] = filtered[idx]
		patch[state.TurnIndexPath(sessionID)] = idx
		if g.CombatState.IsActive {
			// A combat cannot survive its owner; close it unresolved.
			reset, _, endErr := combat.End(g, sessionID, false, r.now())
			if endErr == nil {
				for p, v := range reset {
					patch[p] = v
				}
			}
		}
	default:
		if idx := indexOf(filtered, active); idx >= 0 {
			patch[state.TurnIndexPath(sessionID)] = idx
		}
	}

	if err := r.store.Update(ctx, patch); err != nil {
		return fmt.Errorf("kicking player: %w", err)
	}
	r.logger.Info("player kicked",
		zap.String("session_id", sessionID),
		zap.String("player_id", playerID),
	)
	return nil
}

// load fetches and decodes the session document.
func (r *Repository) load(ctx context.Context, sessionID string) (*state.GameSession, error) {
	v, ok, err := r.store.Get(ctx, state.SessionPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, state.ErrSessionNotFound)
	}
	g, err := state.DecodeSession(v)
	if err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return g, nil
}

// apply commits a patch, wrapping store errors with the operation name.
func (r *Repository) apply(ctx context.Context, op string, patch map[string]any) error {
	if err := r.store.Update(ctx, patch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func requireHost(g *state.GameSession, issuerID string) error {
	if issuerID != g.Meta.HostID {
		return fmt.Errorf("%w: only the host can do that", ErrForbidden)
	}
	return nil
}

func requireActive(g *state.GameSession, issuerID string) error {
	if issuerID != g.TurnState.ActivePlayerID {
		return fmt.Errorf("%w: only the active player can do that", ErrForbidden)
	}
	return nil
}

func requirePlayer(g *state.GameSession, issuerID string) error {
	if _, ok := g.Player(issuerID); !ok {
		return fmt.Errorf("%w: issuer is not in this session", ErrForbidden)
	}
	return nil
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
