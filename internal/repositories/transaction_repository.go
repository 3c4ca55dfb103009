package repositories

import (
	"context"
	"time"

	"dcawallet-api/internal/models"
)

// TransactionRepository is the append-only ledger store. Rows are inserted
// and read, never updated or deleted.
type TransactionRepository interface {
	// Insert appends one ledger entry.
	Insert(ctx context.Context, tx *models.Transaction) error

	// InsertMany appends a batch of ledger entries in one round trip.
	InsertMany(ctx context.Context, txs []models.Transaction) error

	// FindByWallet returns all of a wallet's transactions dated at or
	// before until, ordered ascending by transaction date.
	FindByWallet(ctx context.Context, walletID string, until time.Time) ([]models.Transaction, error)

	// FindEarliest returns the wallet's oldest transaction, or nil when
	// the ledger is empty.
	FindEarliest(ctx context.Context, walletID string) (*models.Transaction, error)

	// ExistsByTxID reports whether a ledger entry carrying the blockchain
	// txid already exists for the wallet.
	ExistsByTxID(ctx context.Context, walletID, txid string) (bool, error)
}
