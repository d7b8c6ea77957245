package notification

import (
	common_models "go-tpm/internal/common/models"
	"go-tpm/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	Service NotificationService
}

func NewNotificationController(service NotificationService) *NotificationController {
	return &NotificationController{Service: service}
}

// ListNotifications godoc
// @Summary List notifications for the current user
// @Tags notifications
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} Notification
// @Router /api/notifications [get]
func (ctl *NotificationController) ListNotifications(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	notifications, err := ctl.Service.ListForUser(c.UserContext(), middleware.Tenant(c), claims.UserID,
		int64(c.QueryInt("limit", 20)), int64(c.QueryInt("offset", 0)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(notifications)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags notifications
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/notifications/{id}/read [post]
func (ctl *NotificationController) MarkRead(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	ok, err := ctl.Service.MarkRead(c.UserContext(), middleware.Tenant(c), claims.UserID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found"})
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// HandleWebSocket keeps the connection open and streams tenant events
// until the client goes away.
func (ctl *NotificationController) HandleWebSocket(c *websocket.Conn) {
	tenantID, _ := c.Locals(string(common_models.TenantIDKey)).(string)
	ctl.Service.Register(tenantID, c)
	defer func() {
		ctl.Service.Unregister(c)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
