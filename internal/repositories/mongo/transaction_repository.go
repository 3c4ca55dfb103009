package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// MongoTransactionRepository implements TransactionRepository using MongoDB.
type MongoTransactionRepository struct {
	collection *mongo.Collection
}

// NewTransactionRepository creates a new MongoDB transaction repository.
func NewTransactionRepository(db *mongo.Database) repositories.TransactionRepository {
	return &MongoTransactionRepository{
		collection: db.Collection("transactions"),
	}
}

// Insert appends one ledger entry.
func (r *MongoTransactionRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, transactionToDoc(tx))
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// InsertMany appends a batch of ledger entries.
func (r *MongoTransactionRepository) InsertMany(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("invalid transaction at index %d: %w", i, err)
		}
		if tx.ID.IsZero() {
			tx.ID = primitive.NewObjectID()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now()
		}
		docs = append(docs, transactionToDoc(tx))
	}

	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to insert transactions: %w", err)
	}
	return nil
}

// FindByWallet returns the wallet's transactions dated at or before until,
// ascending by transaction date.
func (r *MongoTransactionRepository) FindByWallet(ctx context.Context, walletID string, until time.Time) ([]models.Transaction, error) {
	filter := bson.M{
		"wallet_id":        walletID,
		"transaction_date": bson.M{"$lte": until},
	}
	opts := options.Find().SetSort(bson.D{{Key: "transaction_date", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	txs := make([]models.Transaction, 0, len(docs))
	for _, doc := range docs {
		txs = append(txs, *docToTransaction(doc))
	}
	return txs, nil
}

// FindEarliest returns the wallet's oldest transaction, or nil when the
// ledger is empty.
func (r *MongoTransactionRepository) FindEarliest(ctx context.Context, walletID string) (*models.Transaction, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "transaction_date", Value: 1}})

	var doc bson.M
	err := r.collection.FindOne(ctx, bson.M{"wallet_id": walletID}, opts).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find earliest transaction: %w", err)
	}
	return docToTransaction(doc), nil
}

// ExistsByTxID reports whether the wallet already holds a ledger entry for
// the blockchain txid.
func (r *MongoTransactionRepository) ExistsByTxID(ctx context.Context, walletID, txid string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"wallet_id": walletID,
		"txid":      txid,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check txid: %w", err)
	}
	return count > 0, nil
}

func transactionToDoc(tx *models.Transaction) bson.M {
	doc := bson.M{
		"_id":              tx.ID,
		"wallet_id":        tx.WalletID,
		"transaction_type": string(tx.Type),
		"amount_btc":       tx.AmountBTC.String(),
		"price_per_btc":    tx.PricePerBTCUSD.String(),
		"total_value":      tx.TotalValueUSD.String(),
		"currency":         tx.Currency,
		"transaction_date": tx.TransactionDate,
		"created_at":       tx.CreatedAt,
	}
	if tx.Fee != nil {
		doc["fee"] = tx.Fee.String()
		doc["fee_currency"] = tx.FeeCurrency
	}
	if tx.Notes != "" {
		doc["notes"] = tx.Notes
	}
	if tx.TxID != "" {
		doc["txid"] = tx.TxID
	}
	if tx.Origin != "" {
		doc["origin"] = string(tx.Origin)
	}
	return doc
}

func docToTransaction(doc bson.M) *models.Transaction {
	tx := &models.Transaction{
		WalletID:    stringField(doc, "wallet_id"),
		Type:        models.TransactionType(stringField(doc, "transaction_type")),
		Currency:    stringField(doc, "currency"),
		FeeCurrency: stringField(doc, "fee_currency"),
		Notes:       stringField(doc, "notes"),
		TxID:        stringField(doc, "txid"),
		Origin:      models.TransactionOrigin(stringField(doc, "origin")),
	}

	if v, ok := doc["_id"].(primitive.ObjectID); ok {
		tx.ID = v
	}

	tx.AmountBTC = parseDecimalField(doc, "amount_btc")
	tx.PricePerBTCUSD = parseDecimalField(doc, "price_per_btc")
	tx.TotalValueUSD = parseDecimalField(doc, "total_value")
	tx.Fee = parseDecimalPtrField(doc, "fee")

	if v, ok := doc["transaction_date"].(primitive.DateTime); ok {
		tx.TransactionDate = v.Time().UTC()
	}
	if v, ok := doc["created_at"].(primitive.DateTime); ok {
		tx.CreatedAt = v.Time().UTC()
	}

	return tx
}
