// Package bootstrap loads process configuration from the environment and
// assembles the service's dependency graph.
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the process needs to start. Every field maps to
// one environment variable; sensible defaults cover local development except
// for the two cipher keys, which have none on purpose.
type Config struct {
	ServerAddress string

	LogLevel string

	MongoURI      string
	MongoDatabase string

	RedisAddress  string
	RedisPassword string
	StagingTTL    time.Duration

	HashSecretKey    string
	EncryptSecretKey string

	PolicyServiceURL  string
	PricingServiceURL string
	ProcessorURL      string

	AMQPURL      string
	AMQPExchange string
	AMQPRouteKey string

	LedgerMaxRetries int
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddress:     envOr("SERVER_ADDRESS", ":8080"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		MongoURI:          envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     envOr("MONGO_DATABASE", "transaction_core"),
		RedisAddress:      envOr("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		HashSecretKey:     os.Getenv("HASH_SECRET_KEY"),
		EncryptSecretKey:  os.Getenv("ENCRYPT_SECRET_KEY"),
		PolicyServiceURL:  os.Getenv("POLICY_SERVICE_URL"),
		PricingServiceURL: os.Getenv("PRICING_SERVICE_URL"),
		ProcessorURL:      os.Getenv("PROCESSOR_URL"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      envOr("AMQP_EXCHANGE", "transaction.events"),
		AMQPRouteKey:      envOr("AMQP_ROUTE_KEY", "transaction.status"),
	}

	ttl, err := envDuration("STAGING_TTL", 0)
	if err != nil {
		return nil, err
	}

	cfg.StagingTTL = ttl

	retries, err := envInt("LEDGER_MAX_RETRIES", 0)
	if err != nil {
		return nil, err
	}

	cfg.LedgerMaxRetries = retries

	if cfg.HashSecretKey == "" {
		return nil, fmt.Errorf("HASH_SECRET_KEY is required")
	}

	if cfg.EncryptSecretKey == "" {
		return nil, fmt.Errorf("ENCRYPT_SECRET_KEY is required")
	}

	if cfg.ProcessorURL == "" {
		return nil, fmt.Errorf("PROCESSOR_URL is required")
	}

	if cfg.PricingServiceURL == "" {
		return nil, fmt.Errorf("PRICING_SERVICE_URL is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return n, nil
}
