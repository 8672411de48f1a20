package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
)

// StaticResolver resolves payers from a fixed table. Used in tests and
// local setups.
type StaticResolver struct {
	// Payers maps "businessID/payerID" to the resolved payer.
	Payers map[string]ResolvedPayer
}

// ResolvedPayer pairs a payer with their ledger account.
type ResolvedPayer struct {
	Payer           transaction.PayerRef
	LedgerAccountID string
}

func (r *StaticResolver) ResolvePayer(_ context.Context, businessID, payerID string) (transaction.PayerRef, string, error) {
	resolved, ok := r.Payers[businessID+"/"+payerID]
	if !ok {
		return transaction.PayerRef{}, "", ErrPayerNotFound
	}

	return resolved.Payer, resolved.LedgerAccountID, nil
}

// MongoResolver resolves payers from a customers collection.
type MongoResolver struct {
	customers *mongo.Collection
}

// NewMongoResolver wires a resolver over the given collection.
func NewMongoResolver(customers *mongo.Collection) *MongoResolver {
	return &MongoResolver{customers: customers}
}

type customerDoc struct {
	ID              string `bson:"_id"`
	BusinessID      string `bson:"business_id"`
	Name            string `bson:"name"`
	PhoneNumber     string `bson:"phone_number"`
	AccountNumber   string `bson:"account_number"`
	Country         string `bson:"country"`
	LedgerAccountID string `bson:"ledger_account_id"`
}

func (r *MongoResolver) ResolvePayer(ctx context.Context, businessID, payerID string) (transaction.PayerRef, string, error) {
	var doc customerDoc
	err := r.customers.FindOne(ctx, bson.D{
		{Key: "_id", Value: payerID},
		{Key: "business_id", Value: businessID},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return transaction.PayerRef{}, "", ErrPayerNotFound
		}

		return transaction.PayerRef{}, "", fmt.Errorf("find customer: %w", err)
	}

	return transaction.PayerRef{
		ID:            doc.ID,
		Name:          doc.Name,
		PhoneNumber:   doc.PhoneNumber,
		AccountNumber: doc.AccountNumber,
		Country:       doc.Country,
	}, doc.LedgerAccountID, nil
}
