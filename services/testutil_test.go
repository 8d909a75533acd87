package services

import (
	"path/filepath"
	"testing"
	"time"

	"code-race-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens a throwaway file-backed sqlite database. File-backed (rather
// than :memory:) so concurrent connections from the pool see the same data
// and writers queue on the busy timeout instead of failing.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "race.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Problem{},
		&models.Match{},
		&models.UserProfile{},
		&models.LeaderboardEntry{},
	))
	return db
}

func seedProblem(t *testing.T, db *gorm.DB) models.Problem {
	t.Helper()

	p := models.Problem{
		ID:         uuid.NewString(),
		Title:      "Two Sum",
		Slug:       models.SlugFrom("Two Sum"),
		Difficulty: "easy",
	}
	require.NoError(t, p.SetTestCases([]models.TestCase{
		{Input: raw(`{"nums": [2, 7], "target": 9}`), Expected: raw(`[0, 1]`), IsSample: true},
		{Input: raw(`{"nums": [3, 3], "target": 6}`), Expected: raw(`[0, 1]`)},
	}))
	require.NoError(t, db.Create(&p).Error)
	return p
}

// newTestStack wires the service graph against a test database.
func newTestStack(t *testing.T) (*gorm.DB, *Notifier, *ProfileService, *MatchService, *BotRunner, *QueueService) {
	t.Helper()

	db := testDB(t)
	notifier := NewNotifier()
	profiles := NewProfileService(db)
	matches := NewMatchService(db, notifier, profiles, nil)
	bots := NewBotRunner(matches, notifier)
	queue := NewQueueService(db, notifier, bots)
	t.Cleanup(bots.Shutdown)
	return db, notifier, profiles, matches, bots, queue
}

func activeMatch(t *testing.T, db *gorm.DB, matches *MatchService, p1, p2 string) models.Match {
	t.Helper()

	problem := seedProblem(t, db)
	now := time.Now()
	m := models.Match{
		ID:        uuid.NewString(),
		ProblemID: problem.ID,
		Player1ID: p1,
		Player2ID: &p2,
		Status:    models.MatchActive,
		StartedAt: &now,
	}
	require.NoError(t, db.Create(&m).Error)
	return m
}
