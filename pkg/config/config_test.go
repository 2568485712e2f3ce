package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PLAID_PRODUCTS", "transactions, auth ,")
	t.Setenv("SYNC_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"transactions", "auth"}, cfg.Plaid.Products)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.OpenRouter.Model)
	assert.InDelta(t, 0.4, cfg.OpenRouter.Temperature, 0.0001)
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=require", c.DSN())

	c.URL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "db"},
		Supabase: SupabaseConfig{URL: "https://x.supabase.co", JWTSecret: "s"},
		Security: SecurityConfig{EncryptionKey: "k"},
		Sync:     SyncConfig{PageSize: 100},
		Plaid:    PlaidConfig{Env: "sandbox"},
	}
	require.NoError(t, cfg.Validate())

	cfg.Supabase.JWTSecret = ""
	cfg.Plaid.Env = "staging"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_JWT_SECRET")
	assert.Contains(t, err.Error(), "PLAID_ENV")
}

func TestPlaidEnabled(t *testing.T) {
	assert.False(t, PlaidConfig{ClientID: "id"}.Enabled())
	assert.True(t, PlaidConfig{ClientID: "id", Secret: "s"}.Enabled())
}
