package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munchkin-companion/server/internal/game/state"
	"github.com/munchkin-companion/server/internal/storage/postgres"
	"github.com/munchkin-companion/server/internal/testutil"
)

func setupHistoryRepo(t *testing.T) *postgres.GameRecordRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewGameRecordRepository(pc.RawPool)
}

func archiveEntry(gameID string, endedAt int64) state.GameHistoryEntry {
	return state.GameHistoryEntry{
		GameID:      gameID,
		CreatedAt:   endedAt - 60_000,
		EndedAt:     endedAt,
		WinnerID:    "w1",
		WinnerName:  "Ana",
		MaxLevel:    10,
		PlayerNames: []string{"Ana", "Bruno", "Carla"},
	}
}

func TestGameRecordRepository_InsertAndList(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertGameRecord(ctx, archiveEntry("MUNCH-AAAA", 1000)))
	require.NoError(t, repo.InsertGameRecord(ctx, archiveEntry("MUNCH-BBBB", 3000)))
	require.NoError(t, repo.InsertGameRecord(ctx, archiveEntry("MUNCH-CCCC", 2000)))

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "MUNCH-BBBB", entries[0].GameID, "most recently ended first")
	assert.Equal(t, "MUNCH-CCCC", entries[1].GameID)
	assert.Equal(t, "MUNCH-AAAA", entries[2].GameID)
	assert.Equal(t, "Ana", entries[0].WinnerName)
	assert.Equal(t, []string{"Ana", "Bruno", "Carla"}, entries[0].PlayerNames)
}

func TestGameRecordRepository_ListRespectsLimit(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, repo.InsertGameRecord(ctx, archiveEntry("MUNCH-AAAA", 1000+i)))
	}

	entries, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGameRecordRepository_DuplicateGameIDAllowed(t *testing.T) {
	repo := setupHistoryRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertGameRecord(ctx, archiveEntry("MUNCH-AAAA", 1000)))
	require.NoError(t, repo.InsertGameRecord(ctx, archiveEntry("MUNCH-AAAA", 2000)),
		"session ids recycle once the old game is deleted")

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
