package repositories

import (
	"context"
	"errors"

	"dcawallet-api/internal/models"
)

// ErrDuplicateSummary is returned by Insert when a snapshot already exists
// for the same (wallet, timespan, day). The unique index makes this the
// backstop for concurrent recorders racing past the existence check.
var ErrDuplicateSummary = errors.New("summary already recorded for this day")

// SummaryRepository stores daily performance snapshots.
type SummaryRepository interface {
	// ExistsForDay reports whether a snapshot is already recorded for the
	// wallet, timespan and UTC day (YYYY-MM-DD).
	ExistsForDay(ctx context.Context, walletID string, timespan models.Timespan, date string) (bool, error)

	// Insert records one snapshot. Returns ErrDuplicateSummary when the
	// (wallet, timespan, day) slot is already taken.
	Insert(ctx context.Context, summary *models.DailySummary) error

	// FindByWallet returns a wallet's snapshots for one timespan, newest
	// first, capped at limit.
	FindByWallet(ctx context.Context, walletID string, timespan models.Timespan, limit int64) ([]models.DailySummary, error)
}
