package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// MongoSummaryRepository implements SummaryRepository using MongoDB.
type MongoSummaryRepository struct {
	collection *mongo.Collection
}

// NewSummaryRepository creates a new MongoDB daily summary repository.
func NewSummaryRepository(db *mongo.Database) repositories.SummaryRepository {
	return &MongoSummaryRepository{
		collection: db.Collection("daily_summaries"),
	}
}

// ExistsForDay reports whether a snapshot already exists for the slot.
func (r *MongoSummaryRepository) ExistsForDay(ctx context.Context, walletID string, timespan models.Timespan, date string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"wallet_id": walletID,
		"timespan":  string(timespan),
		"date":      date,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check summary: %w", err)
	}
	return count > 0, nil
}

// Insert records one snapshot. The unique index on (wallet_id, timespan,
// date) turns a lost race into ErrDuplicateSummary instead of a double row.
func (r *MongoSummaryRepository) Insert(ctx context.Context, summary *models.DailySummary) error {
	if summary.ID.IsZero() {
		summary.ID = primitive.NewObjectID()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}

	doc, err := summaryToDoc(summary)
	if err != nil {
		return err
	}

	_, err = r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repositories.ErrDuplicateSummary
		}
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// FindByWallet returns snapshots for one wallet and timespan, newest first.
func (r *MongoSummaryRepository) FindByWallet(ctx context.Context, walletID string, timespan models.Timespan, limit int64) ([]models.DailySummary, error) {
	filter := bson.M{
		"wallet_id": walletID,
		"timespan":  string(timespan),
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode summaries: %w", err)
	}

	summaries := make([]models.DailySummary, 0, len(docs))
	for _, doc := range docs {
		s, err := docToSummary(doc)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, nil
}

// The summary payload holds sixteen decimal metrics; rather than hand-map
// each one into string fields it is stored as a single JSON blob, which
// keeps decimal precision because shopspring decimals marshal as strings.
func summaryToDoc(s *models.DailySummary) (bson.M, error) {
	payload, err := json.Marshal(s.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary payload: %w", err)
	}

	return bson.M{
		"_id":        s.ID,
		"wallet_id":  s.WalletID,
		"timespan":   string(s.Timespan),
		"date":       s.Date,
		"summary":    string(payload),
		"created_at": s.CreatedAt,
	}, nil
}

func docToSummary(doc bson.M) (*models.DailySummary, error) {
	s := &models.DailySummary{
		WalletID: stringField(doc, "wallet_id"),
		Timespan: models.Timespan(stringField(doc, "timespan")),
		Date:     stringField(doc, "date"),
	}

	if v, ok := doc["_id"].(primitive.ObjectID); ok {
		s.ID = v
	}
	if v, ok := doc["created_at"].(primitive.DateTime); ok {
		s.CreatedAt = v.Time().UTC()
	}

	if raw := stringField(doc, "summary"); raw != "" {
		var payload models.PerformanceSummary
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("failed to decode summary payload: %w", err)
		}
		s.Summary = &payload
	}

	return s, nil
}
