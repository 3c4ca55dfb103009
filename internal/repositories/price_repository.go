package repositories

import (
	"context"

	"dcawallet-api/internal/models"
)

// PriceHistoryRepository persists spot price observations from the price
// feed so recent history survives restarts.
type PriceHistoryRepository interface {
	InsertPoint(ctx context.Context, currency string, point models.PricePoint) error

	// Recent returns the last limit observations for the currency, newest
	// first.
	Recent(ctx context.Context, currency string, limit int64) ([]models.PricePoint, error)
}
