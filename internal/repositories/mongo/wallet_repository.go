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

// MongoWalletRepository implements WalletRepository using MongoDB.
type MongoWalletRepository struct {
	collection *mongo.Collection
}

// NewWalletRepository creates a new MongoDB wallet repository.
func NewWalletRepository(db *mongo.Database) repositories.WalletRepository {
	return &MongoWalletRepository{
		collection: db.Collection("wallets"),
	}
}

// Create inserts a new wallet.
func (r *MongoWalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID.IsZero() {
		wallet.ID = primitive.NewObjectID()
	}
	wallet.CreatedAt = time.Now()
	wallet.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, walletToDoc(wallet))
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetByID retrieves a wallet by its hex id.
func (r *MongoWalletRepository) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repositories.ErrWalletNotFound
	}

	var doc bson.M
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, repositories.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return docToWallet(doc), nil
}

// GetByUser returns all wallets owned by a user.
func (r *MongoWalletRepository) GetByUser(ctx context.Context, userID string) ([]models.Wallet, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeWallets(ctx, cursor)
}

// GetByAddress returns the blockchain-synced wallet watching the address.
func (r *MongoWalletRepository) GetByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var doc bson.M
	err := r.collection.FindOne(ctx, bson.M{"wallet_address": address}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, repositories.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by address: %w", err)
	}
	return docToWallet(doc), nil
}

// FindDCAEnabled returns every wallet with DCA switched on and at least one
// configuration attached.
func (r *MongoWalletRepository) FindDCAEnabled(ctx context.Context) ([]models.Wallet, error) {
	filter := bson.M{
		"dca_enabled":    true,
		"dca_settings.0": bson.M{"$exists": true},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find DCA wallets: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeWallets(ctx, cursor)
}

// ListIDs returns the ids of every wallet.
func (r *MongoWalletRepository) ListIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode wallet ids: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if oid, ok := doc["_id"].(primitive.ObjectID); ok {
			ids = append(ids, oid.Hex())
		}
	}
	return ids, nil
}

// Update replaces the wallet document.
func (r *MongoWalletRepository) Update(ctx context.Context, wallet *models.Wallet) error {
	wallet.UpdatedAt = time.Now()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": wallet.ID}, walletToDoc(wallet))
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrWalletNotFound
	}
	return nil
}

// Delete removes a wallet by hex id.
func (r *MongoWalletRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repositories.ErrWalletNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrWalletNotFound
	}
	return nil
}

func decodeWallets(ctx context.Context, cursor *mongo.Cursor) ([]models.Wallet, error) {
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode wallets: %w", err)
	}

	wallets := make([]models.Wallet, 0, len(docs))
	for _, doc := range docs {
		wallets = append(wallets, *docToWallet(doc))
	}
	return wallets, nil
}

func walletToDoc(w *models.Wallet) bson.M {
	settings := make([]bson.M, 0, len(w.DCASettings))
	for i := range w.DCASettings {
		settings = append(settings, dcaConfigToDoc(&w.DCASettings[i]))
	}

	synced := make([]bson.M, 0, len(w.SyncedTransactions))
	for _, tx := range w.SyncedTransactions {
		synced = append(synced, bson.M{
			"txid":        tx.TxID,
			"amount":      tx.Amount.String(),
			"timestamp":   tx.Timestamp,
			"is_incoming": tx.IsIncoming,
		})
	}

	return bson.M{
		"_id":                  w.ID,
		"user_id":              w.UserID,
		"label":                w.Label,
		"addresses":            w.Addresses,
		"currency":             w.Currency,
		"notes":                w.Notes,
		"btc_holdings":         w.BTCHoldings.String(),
		"dca_enabled":          w.DCAEnabled,
		"dca_settings":         settings,
		"is_blockchain_synced": w.IsBlockchainSynced,
		"wallet_address":       w.WalletAddress,
		"synced_transactions":  synced,
		"current_btc_balance":  w.CurrentBTCBalance.String(),
		"created_at":           w.CreatedAt,
		"updated_at":           w.UpdatedAt,
	}
}

func dcaConfigToDoc(c *models.DCAConfig) bson.M {
	doc := bson.M{
		"amount":    c.Amount.String(),
		"currency":  c.Currency,
		"frequency": c.Frequency,
	}
	if c.LastExecuted != nil {
		doc["last_executed"] = *c.LastExecuted
	}
	if c.PriceRangeMin != nil {
		doc["price_range_min"] = c.PriceRangeMin.String()
	}
	if c.PriceRangeMax != nil {
		doc["price_range_max"] = c.PriceRangeMax.String()
	}
	return doc
}

func docToWallet(doc bson.M) *models.Wallet {
	w := &models.Wallet{
		UserID:             stringField(doc, "user_id"),
		Label:              stringField(doc, "label"),
		Currency:           stringField(doc, "currency"),
		Notes:              stringField(doc, "notes"),
		DCAEnabled:         boolField(doc, "dca_enabled"),
		IsBlockchainSynced: boolField(doc, "is_blockchain_synced"),
		WalletAddress:      stringField(doc, "wallet_address"),
	}

	if v, ok := doc["_id"].(primitive.ObjectID); ok {
		w.ID = v
	}

	if v, ok := doc["addresses"].(primitive.A); ok {
		for _, a := range v {
			if s, ok := a.(string); ok {
				w.Addresses = append(w.Addresses, s)
			}
		}
	}

	w.BTCHoldings = parseDecimalField(doc, "btc_holdings")
	w.CurrentBTCBalance = parseDecimalField(doc, "current_btc_balance")

	if v, ok := doc["dca_settings"].(primitive.A); ok {
		for _, raw := range v {
			if sub, ok := raw.(bson.M); ok {
				w.DCASettings = append(w.DCASettings, docToDCAConfig(sub))
			}
		}
	}

	if v, ok := doc["synced_transactions"].(primitive.A); ok {
		for _, raw := range v {
			sub, ok := raw.(bson.M)
			if !ok {
				continue
			}
			tx := models.SyncedTransaction{
				TxID:       stringField(sub, "txid"),
				Amount:     parseDecimalField(sub, "amount"),
				IsIncoming: boolField(sub, "is_incoming"),
			}
			if ts, ok := sub["timestamp"].(primitive.DateTime); ok {
				tx.Timestamp = ts.Time().UTC()
			}
			w.SyncedTransactions = append(w.SyncedTransactions, tx)
		}
	}

	if v, ok := doc["created_at"].(primitive.DateTime); ok {
		w.CreatedAt = v.Time().UTC()
	}
	if v, ok := doc["updated_at"].(primitive.DateTime); ok {
		w.UpdatedAt = v.Time().UTC()
	}

	return w
}

func docToDCAConfig(doc bson.M) models.DCAConfig {
	cfg := models.DCAConfig{
		Amount:        parseDecimalField(doc, "amount"),
		Currency:      stringField(doc, "currency"),
		Frequency:     stringField(doc, "frequency"),
		PriceRangeMin: parseDecimalPtrField(doc, "price_range_min"),
		PriceRangeMax: parseDecimalPtrField(doc, "price_range_max"),
	}
	if v, ok := doc["last_executed"].(primitive.DateTime); ok {
		t := v.Time().UTC()
		cfg.LastExecuted = &t
	}
	return cfg
}
