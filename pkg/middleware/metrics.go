package middleware

import (
	"finboard/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// RequestMetrics counts requests by method, route template and status.
func RequestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		// Route().Path is the template ("/api/v1/accounts/:id"), keeping label cardinality bounded.
		m.HTTPRequest(c.Method(), c.Route().Path, status)
		return err
	}
}
