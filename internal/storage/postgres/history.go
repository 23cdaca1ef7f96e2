package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/munchkin-companion/server/internal/game/state"
)

// GameRecordRepository archives ended-game records.
type GameRecordRepository struct {
	db *pgxpool.Pool
}

// NewGameRecordRepository creates a GameRecordRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGameRecordRepository(db *pgxpool.Pool) *GameRecordRepository {
	return &GameRecordRepository{db: db}
}

// InsertGameRecord archives one ended game.
//
// Precondition: entry.GameID must be non-empty.
// Postcondition: The record is durably stored; re-archiving the same game id
// is allowed, since a session id can be reused once the old game is gone.
func (r *GameRecordRepository) InsertGameRecord(ctx context.Context, entry state.GameHistoryEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO game_history
			(game_id, created_at_ms, ended_at_ms, winner_id, winner_name, max_level, player_names)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.GameID, entry.CreatedAt, entry.EndedAt,
		entry.WinnerID, entry.WinnerName, entry.MaxLevel, entry.PlayerNames,
	)
	if err != nil {
		return fmt.Errorf("inserting game record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit archived games, most recently ended first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *GameRecordRepository) ListRecent(ctx context.Context, limit int) ([]state.GameHistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT game_id, created_at_ms, ended_at_ms, winner_id, winner_name, max_level, player_names
		FROM game_history ORDER BY ended_at_ms DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing game records: %w", err)
	}
	defer rows.Close()

	entries := make([]state.GameHistoryEntry, 0)
	for rows.Next() {
		var e state.GameHistoryEntry
		if err := rows.Scan(
			&e.GameID, &e.CreatedAt, &e.EndedAt,
			&e.WinnerID, &e.WinnerName, &e.MaxLevel, &e.PlayerNames,
		); err != nil {
			return nil, fmt.Errorf("scanning game record row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
