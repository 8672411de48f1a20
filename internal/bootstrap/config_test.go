package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("HASH_SECRET_KEY", "aa")
	t.Setenv("ENCRYPT_SECRET_KEY", "bb")
	t.Setenv("PROCESSOR_URL", "http://processor.local")
	t.Setenv("PRICING_SERVICE_URL", "http://pricing.local")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "transaction_core", cfg.MongoDatabase)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, "transaction.events", cfg.AMQPExchange)
	assert.Zero(t, cfg.StagingTTL)
	assert.Zero(t, cfg.LedgerMaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("STAGING_TTL", "5m")
	t.Setenv("LEDGER_MAX_RETRIES", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ServerAddress)
	assert.Equal(t, 5*time.Minute, cfg.StagingTTL)
	assert.Equal(t, 9, cfg.LedgerMaxRetries)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENCRYPT_SECRET_KEY", "")

	_, err := Load()
	require.ErrorContains(t, err, "ENCRYPT_SECRET_KEY")
}

func TestLoadBadDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAGING_TTL", "not-a-duration")

	_, err := Load()
	require.ErrorContains(t, err, "STAGING_TTL")
}
