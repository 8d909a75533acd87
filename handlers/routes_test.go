package handlers

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"code-race-system/models"
	"code-race-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type staticGenerator struct{}

func (staticGenerator) Generate(context.Context, services.HintRequest) (string, error) {
	return "think about edge cases", nil
}

// newTestApp wires the full route surface in the same order main.go does, so
// the test sees exactly the middleware layering production gets.
func newTestApp(t *testing.T) *fiber.App {
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

	notifier := services.NewNotifier()
	profiles := services.NewProfileService(db)
	matches := services.NewMatchService(db, notifier, profiles, nil)
	bots := services.NewBotRunner(matches, notifier)
	queue := services.NewQueueService(db, notifier, bots)
	hints := services.NewHintService(db, profiles, staticGenerator{})
	t.Cleanup(bots.Shutdown)

	app := fiber.New()
	SetupRaceRoutes(app, queue, matches)
	SetupProfileRoutes(app, profiles, hints)
	return app
}

// Public routes must stay reachable without a player identity even though
// they are registered after the secured race routes.
func TestPublicRoutesNeedNoPlayerIdentity(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{"GET", "/stats", "", 200},
		{"POST", "/ping", `{"player_id":"p1"}`, 200},
		{"GET", "/profiles/p1", "", 200},
		{"GET", "/profiles/p1/hints", "", 200},
		{"GET", "/matches/unknown", "", 404},
		{"GET", "/problems/unknown/leaderboard", "", 200},
	}
	for _, c := range cases {
		req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		if c.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := app.Test(req)
		require.NoError(t, err, "%s %s", c.method, c.path)
		assert.Equal(t, c.want, resp.StatusCode, "%s %s", c.method, c.path)
		assert.NotEqual(t, 401, resp.StatusCode, "%s %s must not require identity", c.method, c.path)
	}
}

func TestSecuredRoutesRejectMissingIdentity(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{
		"/queue/enter",
		"/matches/some-id/run",
		"/matches/some-id/submit",
		"/hints",
	} {
		req := httptest.NewRequest("POST", path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err, "POST %s", path)
		assert.Equal(t, 401, resp.StatusCode, "POST %s without X-Player-ID", path)
	}
}
