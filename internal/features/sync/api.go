package sync

import (
	"pos-billing/internal/common/api"
	"pos-billing/internal/config"
	"pos-billing/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
	hub        *EventHub
	config     *config.Config
}

func NewSyncApi(controller *SyncController, hub *EventHub, config *config.Config) api.Route {
	return &SyncApi{
		controller: controller,
		hub:        hub,
		config:     config,
	}
}

// Setup registers all sync routes
func (h *SyncApi) Setup(app *fiber.App) {
	syncGroup := app.Group("/sync")

	// Status stays open so a disconnected client can probe reachability.
	syncGroup.Get("/status", h.controller.GetStatus)
	syncGroup.Get("/events", websocket.New(h.hub.Handle))

	auth := middleware.AuthMiddleware(h.config.SkipAuth)
	syncGroup.Post("/push", auth, h.controller.PushSync)
	syncGroup.Post("/pull", auth, h.controller.PullSync)
	syncGroup.Post("/full", auth, h.controller.FullSync)
	syncGroup.Get("/history", auth, h.controller.GetHistory)
	syncGroup.Get("/snapshot/:table", auth, h.controller.GetSnapshot)
}
