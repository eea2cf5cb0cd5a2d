package handlers

import (
	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// sendError sends a JSON error body with the given status
func sendError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// sendBadRequestError sends a 400 response
func sendBadRequestError(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusBadRequest, message)
}

// sendValidationError sends a 422 response
func sendValidationError(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusUnprocessableEntity, message)
}

// sendUnsupportedMediaError sends a 415 response
func sendUnsupportedMediaError(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusUnsupportedMediaType, message)
}

// sendServiceUnavailableError sends a 503 response
func sendServiceUnavailableError(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusServiceUnavailable, message)
}

// sendInternalServerError logs err and sends a generic 500 response
func sendInternalServerError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("Internal server error: %v", err)
	return sendError(c, fiber.StatusInternalServerError, message)
}
