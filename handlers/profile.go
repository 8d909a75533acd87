package handlers

import (
	"code-race-system/middleware"
	"code-race-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProfileRoutes(app *fiber.App, profileService *services.ProfileService, hintService *services.HintService) {
	// 🔓 Public
	app.Post("/ping", profileService.Ping)
	app.Get("/stats", profileService.Stats)
	app.Get("/profiles/:id", profileService.GetProfile)
	app.Get("/profiles/:id/hints", hintService.GetAvailableHints)

	// 🔐 Hint generation charges points, so it needs the player identity
	app.Post("/hints", middleware.PlayerContextMiddleware(), hintService.RequestHintHandler)
}
