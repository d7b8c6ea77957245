package notification

import (
	"go-tpm/internal/config"
	"go-tpm/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type NotificationApi struct {
	controller *NotificationController
	config     *config.Config
}

func NewNotificationApi(controller *NotificationController, config *config.Config) *NotificationApi {
	return &NotificationApi{
		controller: controller,
		config:     config,
	}
}

func (h *NotificationApi) Setup(app *fiber.App) {
	notifications := app.Group("/api/notifications",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware(h.config),
	)

	notifications.Get("/", h.controller.ListNotifications)
	notifications.Post("/:id/read", h.controller.MarkRead)

	app.Get("/api/ws",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.TenantMiddleware(h.config),
		websocket.New(h.controller.HandleWebSocket),
	)
}
