package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// MongoPriceHistoryRepository implements PriceHistoryRepository on a capped
// collection, so old observations age out without a TTL job.
type MongoPriceHistoryRepository struct {
	collection *mongo.Collection
}

// NewPriceHistoryRepository creates a new MongoDB price history repository.
func NewPriceHistoryRepository(db *mongo.Database) repositories.PriceHistoryRepository {
	return &MongoPriceHistoryRepository{
		collection: db.Collection("price_history"),
	}
}

// InsertPoint records one spot price observation.
func (r *MongoPriceHistoryRepository) InsertPoint(ctx context.Context, currency string, point models.PricePoint) error {
	_, err := r.collection.InsertOne(ctx, bson.M{
		"currency":     currency,
		"price":        point.Price.String(),
		"timestamp_ms": point.TimestampMS,
		"created_at":   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert price point: %w", err)
	}
	return nil
}

// Recent returns the last limit observations for the currency, newest first.
func (r *MongoPriceHistoryRepository) Recent(ctx context.Context, currency string, limit int64) ([]models.PricePoint, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp_ms", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"currency": currency}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find price points: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode price points: %w", err)
	}

	points := make([]models.PricePoint, 0, len(docs))
	for _, doc := range docs {
		point := models.PricePoint{Price: parseDecimalField(doc, "price")}
		switch v := doc["timestamp_ms"].(type) {
		case int64:
			point.TimestampMS = v
		case int32:
			point.TimestampMS = int64(v)
		}
		points = append(points, point)
	}
	return points, nil
}
