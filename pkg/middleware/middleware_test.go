package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"finboard/pkg/auth"
	"finboard/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProtectedApp(v *auth.JWTValidator) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(v, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c).String() + "|" + c.Locals(LocalEmail).(string))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	v := auth.NewJWTValidator("super-secret-jwt-token-with-at-least-32-characters")
	other := auth.NewJWTValidator("a-different-secret-of-sufficient-length!!")
	app := newProtectedApp(v)
	userID := uuid.New()

	valid, err := v.GenerateToken(userID, "ana@example.com", time.Hour)
	require.NoError(t, err)
	expired, err := v.GenerateToken(userID, "ana@example.com", -time.Hour)
	require.NoError(t, err)
	forged, err := other.GenerateToken(userID, "ana@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"garbled", "Bearer not-a-jwt", fiber.StatusUnauthorized},
		{"expired", "Bearer " + expired, fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, fiber.StatusUnauthorized},
		{"valid", "Bearer " + valid, fiber.StatusOK},
		{"lowercase scheme", "bearer " + valid, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, userID.String()+"|ana@example.com", string(body))
			}
		})
	}
}

func TestRequestMetricsUsesRouteTemplate(t *testing.T) {
	m := metrics.New()
	app := fiber.New()
	app.Use(RequestMetrics(m))
	app.Get("/accounts/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadGateway, "upstream") })

	for _, path := range []string{"/accounts/a1", "/accounts/a2", "/boom"} {
		_, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
	}

	// Two series: the templated route at 204 and /boom at 502.
	count, err := testutil.GatherAndCount(m.Registry(), "finboard_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
