// Package history persists and lists the records of ended games.
package history

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/game/state"
	"github.com/munchkin-companion/server/internal/store"
)

// Archive is an optional long-term copy of the history, typically backed by
// PostgreSQL. The store collection stays the source of truth; the archive
// is best-effort.
type Archive interface {
	InsertGameRecord(ctx context.Context, entry state.GameHistoryEntry) error
}

// Recorder appends ended-game records to the store's history collection and
// mirrors them into the archive when one is configured.
type Recorder struct {
	store   store.Store
	archive Archive
	logger  *zap.Logger
}

// NewRecorder creates a Recorder. archive may be nil.
func NewRecorder(st store.Store, archive Archive, logger *zap.Logger) *Recorder {
	return &Recorder{store: st, archive: archive, logger: logger}
}

// Record appends entry to the history collection.
//
// Postcondition: The store append either succeeded or the error is
// returned; an archive failure is logged and swallowed, so a broken
// database never blocks a game from ending.
func (r *Recorder) Record(ctx context.Context, entry state.GameHistoryEntry) error {
	key, err := r.store.Append(ctx, state.HistoryPath, entry)
	if err != nil {
		return fmt.Errorf("appending history entry for %s: %w", entry.GameID, err)
	}
	r.logger.Info("game recorded",
		zap.String("game_id", entry.GameID),
		zap.String("history_key", key),
		zap.String("winner", entry.WinnerName),
	)

	if r.archive == nil {
		return nil
	}
	if err := r.archive.InsertGameRecord(ctx, entry); err != nil {
		r.logger.Warn("history archive insert failed",
			zap.String("game_id", entry.GameID),
			zap.Error(err),
		)
	}
	return nil
}

// List returns all recorded games, most recently ended first.
func (r *Recorder) List(ctx context.Context) ([]state.GameHistoryEntry, error) {
	v, ok, err := r.store.Get(ctx, state.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if !ok {
		return []state.GameHistoryEntry{}, nil
	}
	entries, err := state.DecodeHistoryEntries(v)
	if err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EndedAt > entries[j].EndedAt
	})
	return entries, nil
}
