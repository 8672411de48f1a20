// Package staging holds fully resolved transaction drafts between the
// initiation and execution phases. Drafts live in Redis under their
// checksum, sealed with AES-GCM, and expire on a fixed TTL; consuming a
// draft is an atomic fetch-and-delete so each staged payload executes at
// most once.
package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/crypto"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

// DefaultTTL is how long a staged draft stays executable.
const DefaultTTL = 600 * time.Second

const keyPrefix = "txn:staged:"

// ErrNotFound indicates no staged draft exists for the checksum. Missing,
// expired, and already consumed are indistinguishable.
var ErrNotFound = errors.New("staged draft not found")

// Cache stages drafts in Redis keyed by checksum.
type Cache struct {
	client redis.UniversalClient
	crypto *crypto.Crypto
	logger log.Logger
	ttl    time.Duration
}

// NewCache wires a staging cache. A zero ttl picks DefaultTTL.
func NewCache(client redis.UniversalClient, c *crypto.Crypto, logger log.Logger, ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Cache{client: client, crypto: c, logger: logger, ttl: ttl}
}

// Stage seals the draft and stores it under the checksum with the cache TTL.
// Re-staging the same checksum overwrites the previous draft and resets the
// clock.
func (c *Cache) Stage(ctx context.Context, checksum string, draft *transaction.Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	plain := string(raw)

	sealed, err := c.crypto.Encrypt(&plain)
	if err != nil {
		return fmt.Errorf("seal draft: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+checksum, *sealed, c.ttl).Err(); err != nil {
		return fmt.Errorf("stage draft: %w", err)
	}

	c.logger.Log(ctx, log.LevelDebug, "draft staged",
		log.String("checksum", checksum),
		log.String("ttl", c.ttl.String()),
	)

	return nil
}

// Fetch returns the staged draft without consuming it.
func (c *Cache) Fetch(ctx context.Context, checksum string) (*transaction.Draft, error) {
	sealed, err := c.client.Get(ctx, keyPrefix+checksum).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("fetch draft: %w", err)
	}

	return c.unseal(sealed)
}

// Consume atomically fetches and deletes the staged draft. Exactly one of
// any concurrent consumers for the same checksum gets the draft; the rest
// see ErrNotFound.
func (c *Cache) Consume(ctx context.Context, checksum string) (*transaction.Draft, error) {
	sealed, err := c.client.GetDel(ctx, keyPrefix+checksum).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("consume draft: %w", err)
	}

	return c.unseal(sealed)
}

func (c *Cache) unseal(sealed string) (*transaction.Draft, error) {
	plain, err := c.crypto.Decrypt(&sealed)
	if err != nil {
		return nil, fmt.Errorf("unseal draft: %w", err)
	}

	var draft transaction.Draft
	if err := json.Unmarshal([]byte(*plain), &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}

	return &draft, nil
}
