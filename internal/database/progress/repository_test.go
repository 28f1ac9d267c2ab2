package progress

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ankilms/deckbridge/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_progress_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.DeckProgress{}, &entities.InjectionRecord{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, cleanup
}

func TestRepository_UpsertCardsLearned_CreatesRow(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.UpsertCardsLearned("alice", 1, 12)
	require.NoError(t, err)

	progress, err := repo.GetProgress("alice", 1)
	require.NoError(t, err)
	assert.Equal(t, 12, progress.CardsLearned)
	assert.False(t, progress.LastSync.IsZero())
}

func TestRepository_UpsertCardsLearned_UpdatesExistingRow(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.UpsertCardsLearned("alice", 1, 12))
	require.NoError(t, repo.UpsertCardsLearned("alice", 1, 20))

	progress, err := repo.GetProgress("alice", 1)
	require.NoError(t, err)
	assert.Equal(t, 20, progress.CardsLearned)

	var count int64
	require.NoError(t, repo.db.Model(&entities.DeckProgress{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepository_GetProgress_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetProgress("alice", 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_RecordInjection_RoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.RecordInjection(entities.InjectionResult{
		StudentKey:    "alice",
		Status:        entities.InjectionStatusImported,
		Message:       "imported 3 cards, 1 media files",
		CardsImported: 3,
		MediaCopied:   1,
	}, "Demo")
	require.NoError(t, err)

	records, err := repo.ListInjections("alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Demo", records[0].DeckTitle)
	assert.Equal(t, entities.InjectionStatusImported, records[0].Status)
	assert.Equal(t, 3, records[0].CardsImported)
	assert.Equal(t, 1, records[0].MediaCopied)
}

func TestRepository_ListInjections_RespectsLimitAndStudent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.RecordInjection(entities.InjectionResult{
			StudentKey: "alice",
			Status:     entities.InjectionStatusImported,
		}, "Demo"))
	}
	require.NoError(t, repo.RecordInjection(entities.InjectionResult{
		StudentKey: "bob",
		Status:     entities.InjectionStatusFailed,
	}, "Demo"))

	records, err := repo.ListInjections("alice", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = repo.ListInjections("bob", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entities.InjectionStatusFailed, records[0].Status)
}
