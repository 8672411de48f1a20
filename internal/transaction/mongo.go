package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sodaniels/doseal-transaction-core/pkg/crypto"
	"github.com/sodaniels/doseal-transaction-core/pkg/security"
)

// MongoRepository stores records in a MongoDB collection. Payer and payout
// account numbers are sealed with the configured cipher before hitting disk
// and opened again on read.
type MongoRepository struct {
	collection *mongo.Collection
	crypto     *crypto.Crypto
}

// NewMongoRepository wires a repository over the given collection.
func NewMongoRepository(collection *mongo.Collection, c *crypto.Crypto) *MongoRepository {
	return &MongoRepository{collection: collection, crypto: c}
}

// EnsureIndexes creates the unique checksum index that backstops duplicate
// settlement, plus the external reference lookup index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "checksum", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "external_reference", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(
				bson.D{{Key: "external_reference", Value: bson.D{{Key: "$exists", Value: true}}}},
			),
		},
	})
	if err != nil {
		return fmt.Errorf("create transaction indexes: %w", err)
	}

	return nil
}

func (r *MongoRepository) Create(ctx context.Context, rec *Record) error {
	sealed, err := r.seal(rec)
	if err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, sealed); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateChecksum
		}

		return fmt.Errorf("insert transaction record: %w", err)
	}

	return nil
}

func (r *MongoRepository) Find(ctx context.Context, id string) (*Record, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoRepository) FindByChecksum(ctx context.Context, checksum string) (*Record, error) {
	return r.findOne(ctx, bson.D{{Key: "checksum", Value: checksum}})
}

func (r *MongoRepository) FindByExternalReference(ctx context.Context, ref string) (*Record, error) {
	return r.findOne(ctx, bson.D{{Key: "external_reference", Value: ref}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*Record, error) {
	var rec Record
	if err := r.collection.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}

		return nil, fmt.Errorf("find transaction record: %w", err)
	}

	if err := r.open(&rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *MongoRepository) Transition(ctx context.Context, id string, from, to Status, upd StatusUpdate) (*Record, error) {
	set := bson.D{
		{Key: "status", Value: to},
		{Key: "updated_at", Value: time.Now().UTC()},
	}

	if upd.Message != "" {
		set = append(set, bson.E{Key: "status_message", Value: upd.Message})
	}

	if upd.ExternalReference != "" {
		set = append(set, bson.E{Key: "external_reference", Value: upd.ExternalReference})
	}

	if upd.PaymentURL != "" {
		set = append(set, bson.E{Key: "payment_url", Value: upd.PaymentURL})
	}

	var rec Record
	err := r.collection.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "status", Value: from}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish a missing record from a record that moved on.
			if _, findErr := r.Find(ctx, id); errors.Is(findErr, ErrRecordNotFound) {
				return nil, ErrRecordNotFound
			}

			return nil, ErrStaleTransition
		}

		return nil, fmt.Errorf("transition transaction record: %w", err)
	}

	if err := r.open(&rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *MongoRepository) AppendCallback(ctx context.Context, id string, entry CallbackEntry) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "callbacks", Value: entry}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
		},
	)
	if err != nil {
		return fmt.Errorf("append callback entry: %w", err)
	}

	if res.MatchedCount == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// seal returns a copy of rec with account numbers replaced by ciphertext.
func (r *MongoRepository) seal(rec *Record) (*Record, error) {
	cp := *rec

	sealed, err := security.NewSensitiveField(cp.Payer.AccountNumber).Encrypt(r.crypto)
	if err != nil {
		return nil, fmt.Errorf("seal payer account number: %w", err)
	}

	cp.Payer.AccountNumber = sealed.Ciphertext()

	cp.Beneficiary.Payout, err = sealPayout(cp.Beneficiary.Payout, r.crypto)
	if err != nil {
		return nil, err
	}

	return &cp, nil
}

// open reverses seal in place.
func (r *MongoRepository) open(rec *Record) error {
	opened, err := security.FromCiphertext(rec.Payer.AccountNumber).Decrypt(r.crypto)
	if err != nil {
		return fmt.Errorf("open payer account number: %w", err)
	}

	rec.Payer.AccountNumber = opened.Value()

	rec.Beneficiary.Payout, err = openPayout(rec.Beneficiary.Payout, r.crypto)
	if err != nil {
		return err
	}

	return nil
}

func sealPayout(p PayoutDetails, c *crypto.Crypto) (PayoutDetails, error) {
	transform := func(plain string) (string, error) {
		f, err := security.NewSensitiveField(plain).Encrypt(c)
		if err != nil {
			return "", err
		}

		return f.Ciphertext(), nil
	}

	return mapPayoutAccountNumbers(p, transform)
}

func openPayout(p PayoutDetails, c *crypto.Crypto) (PayoutDetails, error) {
	transform := func(ct string) (string, error) {
		f, err := security.FromCiphertext(ct).Decrypt(c)
		if err != nil {
			return "", err
		}

		return f.Value(), nil
	}

	return mapPayoutAccountNumbers(p, transform)
}

func mapPayoutAccountNumbers(p PayoutDetails, transform func(string) (string, error)) (PayoutDetails, error) {
	var err error

	switch {
	case p.Bank != nil:
		bank := *p.Bank
		if bank.AccountNumber, err = transform(bank.AccountNumber); err != nil {
			return p, fmt.Errorf("transform bank account number: %w", err)
		}

		p.Bank = &bank
	case p.Wallet != nil:
		wallet := *p.Wallet
		if wallet.WalletNumber, err = transform(wallet.WalletNumber); err != nil {
			return p, fmt.Errorf("transform wallet number: %w", err)
		}

		p.Wallet = &wallet
	case p.BillPay != nil:
		bill := *p.BillPay
		if bill.AccountNumber, err = transform(bill.AccountNumber); err != nil {
			return p, fmt.Errorf("transform billpay account number: %w", err)
		}

		p.BillPay = &bill
	}

	return p, nil
}
