package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Supabase   SupabaseConfig
	Plaid      PlaidConfig
	OpenRouter OpenRouterConfig
	Security   SecurityConfig
	Sync       SyncConfig
	Categorize CategorizeConfig
	Logger     LoggerConfig
	Metrics    MetricsConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  string
	BodyLimit    int
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	RedirectURL    string
}

type PlaidConfig struct {
	ClientID       string
	Secret         string
	Env            string
	ClientName     string
	Products       []string
	CountryCodes   []string
	RedirectURI    string
	WebhookURL     string
	VerifyWebhooks bool
	Timeout        time.Duration
}

// Enabled reports whether Plaid credentials are present.
func (c PlaidConfig) Enabled() bool {
	return c.ClientID != "" && c.Secret != ""
}

type OpenRouterConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SiteURL      string
	AppName      string
	Temperature  float32
	MaxTokens    int
	HistoryLimit int
}

type SecurityConfig struct {
	EncryptionKey string
}

type SyncConfig struct {
	Interval    time.Duration
	Concurrency int
	PageSize    int
}

type CategorizeConfig struct {
	RulesFile string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for containers.
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "120"))
	bodyLimit, _ := strconv.Atoi(getEnv("SERVER_BODY_LIMIT", "1048576"))
	maxConns, _ := strconv.Atoi(getEnv("DB_MAX_CONNS", "10"))
	plaidTimeout, _ := strconv.Atoi(getEnv("PLAID_TIMEOUT_SECONDS", "30"))
	temperature, err := strconv.ParseFloat(getEnv("OPENROUTER_TEMPERATURE", "0.4"), 32)
	if err != nil {
		return nil, fmt.Errorf("invalid OPENROUTER_TEMPERATURE: %w", err)
	}
	maxTokens, _ := strconv.Atoi(getEnv("OPENROUTER_MAX_TOKENS", "1024"))
	historyLimit, _ := strconv.Atoi(getEnv("OPENROUTER_HISTORY_LIMIT", "10"))
	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}
	syncConcurrency, _ := strconv.Atoi(getEnv("SYNC_CONCURRENCY", "4"))
	syncPageSize, _ := strconv.Atoi(getEnv("SYNC_PAGE_SIZE", "250"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
			CORSOrigins:  getEnv("CORS_ALLOW_ORIGINS", "*"),
			BodyLimit:    bodyLimit,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(maxConns),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
			RedirectURL:    getEnv("SUPABASE_REDIRECT_URL", ""),
		},
		Plaid: PlaidConfig{
			ClientID:       getEnv("PLAID_CLIENT_ID", ""),
			Secret:         getEnv("PLAID_SECRET", ""),
			Env:            getEnv("PLAID_ENV", "sandbox"),
			ClientName:     getEnv("PLAID_CLIENT_NAME", "Finboard"),
			Products:       splitList(getEnv("PLAID_PRODUCTS", "transactions")),
			CountryCodes:   splitList(getEnv("PLAID_COUNTRY_CODES", "US")),
			RedirectURI:    getEnv("PLAID_REDIRECT_URI", ""),
			WebhookURL:     getEnv("PLAID_WEBHOOK_URL", ""),
			VerifyWebhooks: getEnv("PLAID_VERIFY_WEBHOOKS", "true") == "true",
			Timeout:        time.Duration(plaidTimeout) * time.Second,
		},
		OpenRouter: OpenRouterConfig{
			APIKey:       getEnv("OPENROUTER_API_KEY", ""),
			Model:        getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			BaseURL:      getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			SiteURL:      getEnv("OPENROUTER_SITE_URL", ""),
			AppName:      getEnv("OPENROUTER_APP_NAME", "Finboard"),
			Temperature:  float32(temperature),
			MaxTokens:    maxTokens,
			HistoryLimit: historyLimit,
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Sync: SyncConfig{
			Interval:    syncInterval,
			Concurrency: syncConcurrency,
			PageSize:    syncPageSize,
		},
		Categorize: CategorizeConfig{
			RulesFile: getEnv("CATEGORY_RULES_FILE", ""),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnv("METRICS_ENABLED", "true") == "true",
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}, nil
}

// Validate reports every missing setting the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" && c.Database.Host == "" {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST is required"))
	}
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.Supabase.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required"))
	}
	if c.Security.EncryptionKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY is required"))
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 500 {
		errs = append(errs, fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 500, got %d", c.Sync.PageSize))
	}
	switch c.Plaid.Env {
	case "sandbox", "development", "production":
	default:
		errs = append(errs, fmt.Errorf("PLAID_ENV must be sandbox, development or production, got %q", c.Plaid.Env))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
