package history_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/game/history"
	"github.com/munchkin-companion/server/internal/game/state"
	"github.com/munchkin-companion/server/internal/store"
)

type fakeArchive struct {
	entries []state.GameHistoryEntry
	err     error
}

func (f *fakeArchive) InsertGameRecord(_ context.Context, e state.GameHistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func entry(gameID string, endedAt int64) state.GameHistoryEntry {
	return state.GameHistoryEntry{
		GameID:      gameID,
		CreatedAt:   endedAt - 1000,
		EndedAt:     endedAt,
		WinnerID:    "w",
		WinnerName:  "Ana",
		MaxLevel:    10,
		PlayerNames: []string{"Ana", "Bruno"},
	}
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	rec := history.NewRecorder(store.NewMemory(), nil, zap.NewNop())

	require.NoError(t, rec.Record(ctx, entry("MUNCH-AAAA", 100)))
	require.NoError(t, rec.Record(ctx, entry("MUNCH-BBBB", 300)))
	require.NoError(t, rec.Record(ctx, entry("MUNCH-CCCC", 200)))

	entries, err := rec.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "MUNCH-BBBB", entries[0].GameID, "most recently ended first")
	assert.Equal(t, "MUNCH-CCCC", entries[1].GameID)
	assert.Equal(t, "MUNCH-AAAA", entries[2].GameID)
	assert.Equal(t, []string{"Ana", "Bruno"}, entries[0].PlayerNames)
}

func TestListEmpty(t *testing.T) {
	rec := history.NewRecorder(store.NewMemory(), nil, zap.NewNop())
	entries, err := rec.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordMirrorsToArchive(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchive{}
	rec := history.NewRecorder(store.NewMemory(), arch, zap.NewNop())

	require.NoError(t, rec.Record(ctx, entry("MUNCH-AAAA", 100)))
	require.Len(t, arch.entries, 1)
	assert.Equal(t, "MUNCH-AAAA", arch.entries[0].GameID)
}

func TestArchiveFailureDoesNotFailRecord(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchive{err: errors.New("connection refused")}
	rec := history.NewRecorder(store.NewMemory(), arch, zap.NewNop())

	require.NoError(t, rec.Record(ctx, entry("MUNCH-AAAA", 100)))

	entries, err := rec.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "store copy exists despite the broken archive")
}
