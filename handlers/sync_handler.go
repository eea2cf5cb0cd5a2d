package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"
	websocket "github.com/gofiber/websocket/v2"

	"github.com/alexander-bruun/vitrine/scheduler"
	"github.com/alexander-bruun/vitrine/utils"
)

// HandleSyncStart acknowledges a batch trigger. Processing continues in the
// background.
func HandleSyncStart(c *fiber.Ctx) error {
	ack, err := services.Sync.Start()
	if errors.Is(err, scheduler.ErrShutdown) {
		return sendServiceUnavailableError(c, "Server is shutting down")
	}
	if err != nil {
		return sendInternalServerError(c, "Failed to start sync", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ack)
}

// HandleSyncRepair reprocesses a narrow selection of products synchronously
func HandleSyncRepair(c *fiber.Ctx) error {
	var req scheduler.RepairRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return sendBadRequestError(c, "Invalid repair request body")
		}
	}
	if req.Limit < 0 {
		return sendValidationError(c, "limit must not be negative")
	}
	report, err := services.Sync.Repair(c.UserContext(), req)
	if err != nil {
		return sendInternalServerError(c, "Repair failed", err)
	}
	return c.JSON(report)
}

// HandleSyncDiagnostics returns internalized and external product counts
func HandleSyncDiagnostics(c *fiber.Ctx) error {
	internal, external, err := services.Diagnostics.CountImageKinds(c.UserContext())
	if err != nil {
		return sendInternalServerError(c, "Failed to count products", err)
	}
	return c.JSON(fiber.Map{
		"totalInternal": internal,
		"totalExternal": external,
	})
}

// HandleSyncStatus returns the counters of the current or last batch
func HandleSyncStatus(c *fiber.Ctx) error {
	return c.JSON(services.Sync.Status())
}

// HandleSyncLogsWebSocketUpgrade streams process logs over a websocket
func HandleSyncLogsWebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			utils.HandleConsoleLogsWebSocket(conn)
		})(c)
	}
	return c.Status(fiber.StatusUpgradeRequired).SendString("WebSocket upgrade required")
}
