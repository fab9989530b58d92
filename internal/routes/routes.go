package routes

import (
	"github.com/gofiber/fiber/v2"

	"conversions-relay-service/internal/controller"
)

// Register attaches all HTTP routes to the Fiber app.
func Register(app *fiber.App, eventController controller.EventController) {
	v1 := app.Group("/v1")
	v1.Post("/events", eventController.CreateEvent)

	app.Get("/health", eventController.Health)
}
