package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finboard/internal/repository"
	"finboard/internal/service"
	"finboard/pkg/auth"
	"finboard/pkg/categorize"
	"finboard/pkg/config"
	"finboard/pkg/crypto"
	"finboard/pkg/logger"
	"finboard/pkg/metrics"
	"finboard/pkg/plaid"
	"finboard/pkg/postgres"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	appName = "finctl"
	appDesc = "Maintenance commands for the finboard backend."
)

type cli struct {
	Migrate   migrateCmd   `cmd:"" help:"Apply pending database migrations."`
	Sync      syncCmd      `cmd:"" help:"Run a Plaid transactions sync for one user or every active item."`
	Recurring recurringCmd `cmd:"" help:"Detect recurring charges for a user and store the snapshot."`
	Token     tokenCmd     `cmd:"" help:"Sign a short-lived access token for local API calls."`
	Version   versionCmd   `cmd:"" help:"Print build information."`
}

// env is shared by the commands; the database is opened on first use.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func (e *env) db(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool == nil {
		pool, err := postgres.NewPool(ctx, &e.cfg.Database, e.logger)
		if err != nil {
			return nil, err
		}
		e.pool = pool
	}
	return e.pool, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

type migrateCmd struct {
	List bool `help:"List embedded migrations without applying them."`
}

func (c *migrateCmd) Run(ctx context.Context, e *env) error {
	if c.List {
		migrations, err := postgres.Migrations()
		if err != nil {
			return err
		}
		for _, m := range migrations {
			fmt.Println(m.Version)
		}
		return nil
	}

	db, err := e.db(ctx)
	if err != nil {
		return err
	}
	applied, err := postgres.Migrate(ctx, db, e.logger)
	if err != nil {
		return err
	}
	e.logger.Info("Migrations applied", zap.Int("count", applied))
	return nil
}

type syncCmd struct {
	User string `help:"User ID to sync; all active items when empty."`
}

func (c *syncCmd) Run(ctx context.Context, e *env) error {
	svc, err := e.syncService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	var resp any
	if c.User != "" {
		userID, err := uuid.Parse(c.User)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		resp, err = svc.SyncUser(ctx, userID)
		if err != nil {
			return err
		}
	} else {
		if resp, err = svc.SyncAll(ctx); err != nil {
			return err
		}
	}
	return printJSON(resp)
}

type recurringCmd struct {
	User string `required:"" help:"User ID."`
}

func (c *recurringCmd) Run(ctx context.Context, e *env) error {
	userID, err := uuid.Parse(c.User)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	db, err := e.db(ctx)
	if err != nil {
		return err
	}
	client, sealer, categorizer, err := e.clients(nil)
	if err != nil {
		return err
	}

	svc := service.NewInsightsService(client,
		repository.NewItemRepository(db, e.logger),
		repository.NewTransactionRepository(db, e.logger),
		repository.NewRecurringRepository(db, e.logger),
		sealer, categorizer, e.logger)
	resp, err := svc.RecurringCharges(ctx, userID)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

type tokenCmd struct {
	User  string        `required:"" help:"User ID (token subject)."`
	Email string        `help:"Email claim."`
	TTL   time.Duration `default:"1h" help:"Token lifetime."`
}

func (c *tokenCmd) Run(e *env) error {
	userID, err := uuid.Parse(c.User)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	if e.cfg.Supabase.JWTSecret == "" {
		return errors.New("SUPABASE_JWT_SECRET is required")
	}
	token, err := auth.NewJWTValidator(e.cfg.Supabase.JWTSecret).GenerateToken(userID, c.Email, c.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

type versionCmd struct{}

func (c *versionCmd) Run() error {
	fmt.Println(metrics.BuildInfo())
	return nil
}

func (e *env) syncService(ctx context.Context) (*service.SyncService, error) {
	db, err := e.db(ctx)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	client, sealer, categorizer, err := e.clients(m)
	if err != nil {
		return nil, err
	}
	return service.NewSyncService(client,
		repository.NewItemRepository(db, e.logger),
		repository.NewAccountRepository(db, e.logger),
		repository.NewTransactionRepository(db, e.logger),
		sealer, categorizer, m, e.cfg.Sync, e.logger), nil
}

// clients builds the Plaid client (nil interface when unconfigured), the token
// sealer and the categorizer.
func (e *env) clients(m *metrics.Metrics) (service.PlaidClient, *crypto.Sealer, *categorize.Categorizer, error) {
	sealer, err := crypto.NewSealer(e.cfg.Security.EncryptionKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	categorizer := categorize.Default()
	if e.cfg.Categorize.RulesFile != "" {
		if categorizer, err = categorize.Load(e.cfg.Categorize.RulesFile); err != nil {
			return nil, nil, nil, err
		}
	}

	var client service.PlaidClient
	if e.cfg.Plaid.Enabled() {
		c, err := plaid.NewClient(&e.cfg.Plaid, e.logger, plaid.WithMetrics(m))
		if err != nil {
			return nil, nil, nil, err
		}
		client = c
	}
	return client, sealer, categorizer, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var args cli
	kctx := kong.Parse(&args,
		kong.Name(appName),
		kong.Description(appDesc),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{cfg: cfg, logger: logger.Get()}
	defer e.close()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(e); err != nil {
		e.logger.Error("Command failed", zap.String("command", kctx.Command()), zap.Error(err))
		stop()
		e.close()
		logger.Sync()
		os.Exit(1)
	}
}
