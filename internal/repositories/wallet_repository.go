package repositories

import (
	"context"
	"errors"

	"dcawallet-api/internal/models"
)

// ErrWalletNotFound is returned when no wallet matches the lookup.
var ErrWalletNotFound = errors.New("wallet not found")

// WalletRepository stores wallets and their embedded DCA and sync state.
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error

	// GetByID returns the wallet or ErrWalletNotFound.
	GetByID(ctx context.Context, id string) (*models.Wallet, error)

	GetByUser(ctx context.Context, userID string) ([]models.Wallet, error)

	// GetByAddress returns the blockchain-synced wallet watching the
	// address, or ErrWalletNotFound.
	GetByAddress(ctx context.Context, address string) (*models.Wallet, error)

	// FindDCAEnabled returns every wallet with at least one active DCA
	// configuration.
	FindDCAEnabled(ctx context.Context) ([]models.Wallet, error)

	// ListIDs returns the ids of all wallets, for batch jobs that walk
	// the whole population.
	ListIDs(ctx context.Context) ([]string, error)

	// Update replaces the wallet's mutable fields. The caller is expected
	// to hold the wallet's distributed lock when the update folds in a
	// balance delta.
	Update(ctx context.Context, wallet *models.Wallet) error

	Delete(ctx context.Context, id string) error
}
