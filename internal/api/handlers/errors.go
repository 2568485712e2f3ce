package handlers

import (
	"errors"

	"finboard/internal/service"
	"finboard/pkg/llm"
	"finboard/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError maps service errors onto HTTP statuses. message is the body for
// unexpected failures, which are logged; client errors are not.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, message string) error {
	status, body := statusFor(err, message)
	if status >= fiber.StatusInternalServerError {
		logger.Error(message, zap.Error(err), zap.String("path", c.Path()))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": body,
	})
}

func statusFor(err error, message string) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrForbidden):
		return fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrInvalidInput):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrNotConfigured):
		return fiber.StatusServiceUnavailable, "Integration not configured"
	case errors.Is(err, llm.ErrRateLimited):
		return fiber.StatusTooManyRequests, "Assistant is busy, try again shortly"
	case errors.Is(err, service.ErrUpstream):
		return fiber.StatusBadGateway, message
	default:
		return fiber.StatusInternalServerError, message
	}
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return userID, nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}
