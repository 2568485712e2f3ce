package api

import (
	"errors"
	"time"

	"finboard/docs"
	"finboard/internal/api/handlers"
	"finboard/pkg/auth"
	"finboard/pkg/config"
	"finboard/pkg/metrics"
	"finboard/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

// Per-user budget for the LLM-backed chat routes.
const (
	chatRateLimit  = 20
	chatRateWindow = time.Minute
)

type Handlers struct {
	Health       *handlers.HealthHandler
	Auth         *handlers.AuthHandler
	Plaid        *handlers.PlaidHandler
	Accounts     *handlers.AccountHandler
	Transactions *handlers.TransactionHandler
	Insights     *handlers.InsightsHandler
	Chat         *handlers.ChatHandler
}

func SetupRouter(
	h Handlers,
	validator *auth.JWTValidator,
	m *metrics.Metrics,
	cfg *config.Config,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "finboard",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			} else {
				appLogger.Error("Unhandled error", zap.Error(err), zap.String("path", c.Path()))
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(middleware.RequestMetrics(m))

	app.Get("/healthz", h.Health.Health)
	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(m.Handler()))
	}

	_ = docs.SwaggerInfo // registered with swag in init()
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Public routes
	authRoutes := app.Group("/auth")
	authRoutes.Get("/oauth/:provider", h.Auth.StartOAuth)
	authRoutes.Post("/callback", h.Auth.Callback)
	authRoutes.Post("/refresh", h.Auth.Refresh)

	app.Post("/plaid/webhook", h.Plaid.Webhook)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(validator, appLogger))

	protected.Get("/me", h.Auth.Me)
	protected.Delete("/me", h.Auth.DeleteMe)
	protected.Post("/auth/logout", h.Auth.Logout)

	protected.Post("/plaid/link-token", h.Plaid.CreateLinkToken)
	protected.Post("/plaid/exchange", h.Plaid.ExchangePublicToken)

	items := protected.Group("/items")
	items.Get("", h.Plaid.ListItems)
	items.Delete("/:id", h.Plaid.RemoveItem)
	items.Post("/:id/link-token", h.Plaid.CreateUpdateLinkToken)

	accounts := protected.Group("/accounts")
	accounts.Get("", h.Accounts.ListAccounts)
	accounts.Post("/refresh", h.Accounts.RefreshBalances)
	accounts.Get("/:id", h.Accounts.GetAccount)

	transactions := protected.Group("/transactions")
	transactions.Get("", h.Transactions.ListTransactions)
	transactions.Post("/sync", h.Transactions.Sync)
	transactions.Patch("/:id", h.Transactions.UpdateCategory)

	insights := protected.Group("/insights")
	insights.Get("/spending", h.Insights.SpendingSummary)
	insights.Get("/recurring", h.Insights.RecurringCharges)

	chat := protected.Group("/chat")
	chatLimit := limiter.New(limiter.Config{
		Max:        chatRateLimit,
		Expiration: chatRateWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return middleware.UserID(c).String()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many chat requests, slow down",
			})
		},
	})
	chat.Post("", chatLimit, h.Chat.Chat)
	chat.Post("/stream", chatLimit, h.Chat.ChatStream)
	chat.Get("/history", h.Chat.History)
	chat.Delete("/history", h.Chat.ClearHistory)

	return app
}
