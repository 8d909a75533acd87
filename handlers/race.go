package handlers

import (
	"code-race-system/middleware"
	"code-race-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRaceRoutes(app *fiber.App, queueService *services.QueueService, matchService *services.MatchService) {
	// 🔓 Public reads
	app.Get("/matches/:id", matchService.GetMatch)
	app.Get("/matches/:id/events", matchService.StreamMatchSSE)
	app.Get("/problems/:id/leaderboard", matchService.GetLeaderboard)

	// 🔐 Participant actions — identity attached per route. A "/" group would
	// drag the requirement onto every route registered after it.
	playerCtx := middleware.PlayerContextMiddleware()
	app.Post("/queue/enter", playerCtx, queueService.EnterQueueHandler)
	app.Post("/matches/:id/run", playerCtx, matchService.RunTests)
	app.Post("/matches/:id/submit", playerCtx, matchService.Submit)
}
