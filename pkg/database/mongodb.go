package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dcawallet-api/internal/config"
)

// MongoDB represents MongoDB database connection
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB creates a new MongoDB connection
func NewMongoDB(cfg config.DatabaseConfig) (*MongoDB, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)

	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(uint64(cfg.MinPoolSize))
	}
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	}
	if cfg.SocketTimeout > 0 {
		clientOpts.SetSocketTimeout(time.Duration(cfg.SocketTimeout) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	if err := createCollections(ctx, database); err != nil {
		return nil, fmt.Errorf("failed to create collections: %w", err)
	}
	if err := createIndexes(ctx, database); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDB{
		client:   client,
		database: database,
	}, nil
}

// GetDatabase returns the database instance
func (m *MongoDB) GetDatabase() *mongo.Database {
	return m.database
}

// Collection returns a collection
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Disconnect closes the database connection
func (m *MongoDB) Disconnect() error {
	if m.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}

// Ping checks the database connection
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// IsHealthy reports whether the database responds to ping
func (m *MongoDB) IsHealthy(ctx context.Context) bool {
	return m.Ping(ctx) == nil
}

// createCollections pre-creates collections that need explicit options.
// price_history is capped so spot observations age out on their own.
func createCollections(ctx context.Context, db *mongo.Database) error {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": "price_history"})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) > 0 {
		return nil
	}

	opts := options.CreateCollection().
		SetCapped(true).
		SetSizeInBytes(16 * 1024 * 1024).
		SetMaxDocuments(100000)

	if err := db.CreateCollection(ctx, "price_history", opts); err != nil {
		return fmt.Errorf("failed to create price_history: %w", err)
	}
	return nil
}

// createIndexes creates necessary indexes for collections
func createIndexes(ctx context.Context, db *mongo.Database) error {
	txCollection := db.Collection("transactions")
	txIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "wallet_id", Value: 1}, {Key: "transaction_date", Value: 1}},
		},
		{
			// txid dedups blockchain imports; sparse because manual and
			// DCA entries have no txid.
			Keys:    bson.D{{Key: "wallet_id", Value: 1}, {Key: "txid", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := txCollection.Indexes().CreateMany(ctx, txIndexes); err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}

	walletCollection := db.Collection("wallets")
	walletIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "wallet_address", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "dca_enabled", Value: 1}},
		},
	}
	if _, err := walletCollection.Indexes().CreateMany(ctx, walletIndexes); err != nil {
		return fmt.Errorf("failed to create wallet indexes: %w", err)
	}

	summaryCollection := db.Collection("daily_summaries")
	summaryIndexes := []mongo.IndexModel{
		{
			// At most one snapshot per wallet, timespan and day. The
			// recorder checks first, but this closes the race.
			Keys:    bson.D{{Key: "wallet_id", Value: 1}, {Key: "timespan", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := summaryCollection.Indexes().CreateMany(ctx, summaryIndexes); err != nil {
		return fmt.Errorf("failed to create summary indexes: %w", err)
	}

	return nil
}
