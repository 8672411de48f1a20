package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps accounts and holds in two MongoDB collections. The
// optimistic version check maps to a conditional UpdateOne on {_id, version};
// hold idempotency maps to a unique index on the key.
type MongoStore struct {
	accounts *mongo.Collection
	holds    *mongo.Collection
}

// NewMongoStore wires a store over the given collections.
func NewMongoStore(accounts, holds *mongo.Collection) *MongoStore {
	return &MongoStore{accounts: accounts, holds: holds}
}

// EnsureIndexes creates the unique hold idempotency-key index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.holds.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create hold indexes: %w", err)
	}

	return nil
}

func (s *MongoStore) CreateAccount(ctx context.Context, acct *Account) error {
	if _, err := s.accounts.InsertOne(ctx, acct); err != nil {
		return fmt.Errorf("insert ledger account: %w", err)
	}

	return nil
}

func (s *MongoStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acct Account
	if err := s.accounts.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&acct); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}

		return nil, fmt.Errorf("find ledger account: %w", err)
	}

	return &acct, nil
}

func (s *MongoStore) UpdateAccount(ctx context.Context, acct *Account, expectedVersion int64) error {
	res, err := s.accounts.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: acct.ID}, {Key: "version", Value: expectedVersion}},
		acct,
	)
	if err != nil {
		return fmt.Errorf("update ledger account: %w", err)
	}

	if res.MatchedCount == 0 {
		// Either the account vanished or a concurrent writer bumped the
		// version. The caller retries on conflict, so probe which it was.
		if _, getErr := s.GetAccount(ctx, acct.ID); errors.Is(getErr, ErrAccountNotFound) {
			return ErrAccountNotFound
		}

		return ErrVersionConflict
	}

	return nil
}

func (s *MongoStore) InsertHold(ctx context.Context, hold *Hold) error {
	if _, err := s.holds.InsertOne(ctx, hold); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateHold
		}

		return fmt.Errorf("insert hold: %w", err)
	}

	return nil
}

func (s *MongoStore) GetHold(ctx context.Context, id string) (*Hold, error) {
	return s.findHold(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *MongoStore) FindHoldByKey(ctx context.Context, key string) (*Hold, error) {
	return s.findHold(ctx, bson.D{{Key: "idempotency_key", Value: key}})
}

func (s *MongoStore) findHold(ctx context.Context, filter bson.D) (*Hold, error) {
	var hold Hold
	if err := s.holds.FindOne(ctx, filter).Decode(&hold); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrHoldNotFound
		}

		return nil, fmt.Errorf("find hold: %w", err)
	}

	return &hold, nil
}

func (s *MongoStore) TransitionHold(ctx context.Context, id string, from, to HoldState) (*Hold, error) {
	var hold Hold
	err := s.holds.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "state", Value: from}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "state", Value: to}}},
			{Key: "$currentDate", Value: bson.D{{Key: "updated_at", Value: true}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&hold)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.GetHold(ctx, id); errors.Is(getErr, ErrHoldNotFound) {
				return nil, ErrHoldNotFound
			}

			return nil, ErrVersionConflict
		}

		return nil, fmt.Errorf("transition hold: %w", err)
	}

	return &hold, nil
}

func (s *MongoStore) RecordRefund(ctx context.Context, id string, refunded decimal.Decimal, expectedVersion int64) (*Hold, error) {
	var hold Hold
	err := s.holds.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "version", Value: expectedVersion}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "refunded", Value: refunded}}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
			{Key: "$currentDate", Value: bson.D{{Key: "updated_at", Value: true}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&hold)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.GetHold(ctx, id); errors.Is(getErr, ErrHoldNotFound) {
				return nil, ErrHoldNotFound
			}

			return nil, ErrVersionConflict
		}

		return nil, fmt.Errorf("record refund: %w", err)
	}

	return &hold, nil
}
