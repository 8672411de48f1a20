package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sodaniels/doseal-transaction-core/internal/api"
	"github.com/sodaniels/doseal-transaction-core/internal/events"
	"github.com/sodaniels/doseal-transaction-core/internal/ledger"
	"github.com/sodaniels/doseal-transaction-core/internal/pipeline"
	"github.com/sodaniels/doseal-transaction-core/internal/policy"
	"github.com/sodaniels/doseal-transaction-core/internal/rates"
	"github.com/sodaniels/doseal-transaction-core/internal/settlement"
	"github.com/sodaniels/doseal-transaction-core/internal/staging"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/crypto"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
	zaplog "github.com/sodaniels/doseal-transaction-core/pkg/zap"
)

const shutdownTimeout = 10 * time.Second

// Service is the assembled process: every dependency wired, ready to serve.
type Service struct {
	cfg    *Config
	logger log.Logger
	app    *fiber.App

	mongoClient *mongo.Client
	redisClient *redis.Client
	publisher   events.Publisher
}

// New builds the full dependency graph from the configuration.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger, err := zaplog.New(zaplog.Config{Level: level})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	cipher := &crypto.Crypto{
		HashSecretKey:    cfg.HashSecretKey,
		EncryptSecretKey: cfg.EncryptSecretKey,
		Logger:           logger,
	}
	if err := cipher.InitializeCipher(); err != nil {
		return nil, fmt.Errorf("initialize cipher: %w", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	db := mongoClient.Database(cfg.MongoDatabase)

	records := transaction.NewMongoRepository(db.Collection("transactions"), cipher)
	if err := records.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	store := ledger.NewMongoStore(db.Collection("accounts"), db.Collection("holds"))
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	engine := ledger.NewEngine(store, logger, ledger.Config{MaxRetries: cfg.LedgerMaxRetries})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
	})
	stagingCache := staging.NewCache(redisClient, cipher, logger, cfg.StagingTTL)

	var gate policy.Gate = policy.AllowAll{}
	if cfg.PolicyServiceURL != "" {
		gate = policy.NewHTTPGate(cfg.PolicyServiceURL, nil, logger)
	}

	provider := rates.NewHTTPProvider(cfg.PricingServiceURL, nil)
	processor := settlement.NewHTTPProcessor(cfg.ProcessorURL, nil, logger)

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		publisher = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRouteKey, logger)
	}

	reconciler := settlement.NewReconciler(records, engine, publisher, logger)
	dispatcher := settlement.NewDispatcher(processor, records, reconciler, logger)
	resolver := pipeline.NewMongoResolver(db.Collection("customers"))

	p := pipeline.New(stagingCache, records, engine, gate, provider, dispatcher, resolver, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api.NewHandler(p, reconciler, logger).Register(app)

	return &Service{
		cfg:         cfg,
		logger:      logger,
		app:         app,
		mongoClient: mongoClient,
		redisClient: redisClient,
		publisher:   publisher,
	}, nil
}

// Run serves until SIGINT or SIGTERM, then drains connections and closes
// every client.
func (s *Service) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Log(context.Background(), log.LevelInfo, "server listening",
			log.String("address", s.cfg.ServerAddress),
		)
		errCh <- s.app.Listen(s.cfg.ServerAddress)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.logger.Log(context.Background(), log.LevelInfo, "shutting down",
			log.String("signal", sig.String()),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		s.logger.Log(ctx, log.LevelError, "server shutdown failed", log.Err(err))
	}

	if closer, ok := s.publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Log(ctx, log.LevelWarn, "publisher close failed", log.Err(err))
		}
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Log(ctx, log.LevelWarn, "redis close failed", log.Err(err))
	}

	if err := s.mongoClient.Disconnect(ctx); err != nil {
		s.logger.Log(ctx, log.LevelWarn, "mongo disconnect failed", log.Err(err))
	}

	_ = s.logger.Sync(ctx)

	return nil
}
