package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finboard/internal/api"
	"finboard/internal/api/handlers"
	"finboard/internal/repository"
	"finboard/internal/service"
	"finboard/pkg/auth"
	"finboard/pkg/categorize"
	"finboard/pkg/config"
	"finboard/pkg/crypto"
	"finboard/pkg/llm"
	"finboard/pkg/logger"
	"finboard/pkg/metrics"
	"finboard/pkg/plaid"
	"finboard/pkg/postgres"
	"finboard/pkg/supabase"

	"go.uber.org/zap"
)

// @title Finboard API
// @version 1.0
// @description Personal finance dashboard: Plaid-linked accounts, transactions, spending insights and an AI assistant.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Supabase access token, as "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting finboard", zap.String("build", metrics.BuildInfo()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	m := metrics.New()

	sealer, err := crypto.NewSealer(cfg.Security.EncryptionKey)
	if err != nil {
		appLogger.Fatal("Invalid encryption key", zap.Error(err))
	}
	categorizer := categorize.Default()
	if cfg.Categorize.RulesFile != "" {
		if categorizer, err = categorize.Load(cfg.Categorize.RulesFile); err != nil {
			appLogger.Fatal("Failed to load category rules", zap.Error(err))
		}
	}

	// Repositories
	profileRepo := repository.NewProfileRepository(db, appLogger)
	itemRepo := repository.NewItemRepository(db, appLogger)
	accountRepo := repository.NewAccountRepository(db, appLogger)
	txRepo := repository.NewTransactionRepository(db, appLogger)
	recurringRepo := repository.NewRecurringRepository(db, appLogger)
	chatRepo := repository.NewChatRepository(db, appLogger)

	// Upstream clients. Plaid and OpenRouter are optional; their interfaces stay
	// nil when unconfigured so the services answer ErrNotConfigured.
	authClient := supabase.NewAuthClient(&cfg.Supabase, appLogger, m)

	var plaidClient service.PlaidClient
	if cfg.Plaid.Enabled() {
		c, err := plaid.NewClient(&cfg.Plaid, appLogger, plaid.WithMetrics(m))
		if err != nil {
			appLogger.Fatal("Failed to initialize Plaid client", zap.Error(err))
		}
		plaidClient = c
	} else {
		appLogger.Warn("Plaid credentials missing, bank linking disabled")
	}

	var chatModel service.ChatModel
	if cfg.OpenRouter.APIKey != "" {
		c, err := llm.NewClient(&cfg.OpenRouter, appLogger, m)
		if err != nil {
			appLogger.Fatal("Failed to initialize OpenRouter client", zap.Error(err))
		}
		chatModel = c
	} else {
		appLogger.Warn("OPENROUTER_API_KEY missing, assistant disabled")
	}

	// Services
	syncService := service.NewSyncService(plaidClient, itemRepo, accountRepo, txRepo, sealer, categorizer, m, cfg.Sync, appLogger)
	defer syncService.Close()

	authService := service.NewAuthService(profileRepo, authClient, appLogger)
	deletionService := service.NewDeletionService(plaidClient, itemRepo, profileRepo, authClient, sealer, appLogger)
	plaidService := service.NewPlaidService(plaidClient, itemRepo, accountRepo, sealer, syncService, &cfg.Plaid, appLogger)
	webhookService := service.NewWebhookService(plaidClient, itemRepo, syncService, &cfg.Plaid, appLogger)
	accountService := service.NewAccountService(plaidClient, itemRepo, accountRepo, sealer, appLogger)
	txService := service.NewTransactionService(txRepo, appLogger)
	insightsService := service.NewInsightsService(plaidClient, itemRepo, txRepo, recurringRepo, sealer, categorizer, appLogger)
	advisorService := service.NewAdvisorService(chatModel, accountRepo, txRepo, recurringRepo, chatRepo, &cfg.OpenRouter, appLogger)

	// Handlers
	app := api.SetupRouter(api.Handlers{
		Health:       handlers.NewHealthHandler(db, appLogger),
		Auth:         handlers.NewAuthHandler(authService, deletionService, appLogger),
		Plaid:        handlers.NewPlaidHandler(plaidService, webhookService, appLogger),
		Accounts:     handlers.NewAccountHandler(accountService, appLogger),
		Transactions: handlers.NewTransactionHandler(txService, syncService, appLogger),
		Insights:     handlers.NewInsightsHandler(insightsService, appLogger),
		Chat:         handlers.NewChatHandler(advisorService, appLogger),
	}, auth.NewJWTValidator(cfg.Supabase.JWTSecret), m, cfg, appLogger)

	go syncService.Run(ctx)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
