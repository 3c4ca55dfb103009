package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
	"dcawallet-api/pkg/cache"
)

// WalletLocker serializes per-wallet balance mutations across instances.
type WalletLocker interface {
	AcquireWalletLock(ctx context.Context, walletID string, ttl time.Duration) (*cache.WalletLock, error)
	ReleaseWalletLock(ctx context.Context, lock *cache.WalletLock) error
}

// EventPublisher emits ledger events; a nil-backed implementation drops them.
type EventPublisher interface {
	PublishTransaction(tx *models.Transaction)
}

// TransactionService appends manual ledger entries and keeps the wallet's
// denormalized running balance in step.
type TransactionService struct {
	transactions repositories.TransactionRepository
	wallets      repositories.WalletRepository
	locker       WalletLocker
	publisher    EventPublisher
	lockTTL      time.Duration
	log          *logrus.Entry
}

// NewTransactionService creates a transaction service.
func NewTransactionService(transactions repositories.TransactionRepository, wallets repositories.WalletRepository,
	locker WalletLocker, publisher EventPublisher, lockTTL time.Duration) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		wallets:      wallets,
		locker:       locker,
		publisher:    publisher,
		lockTTL:      lockTTL,
		log:          logrus.WithField("component", "transaction_service"),
	}
}

// CreateTransactionRequest carries one manual ledger entry.
type CreateTransactionRequest struct {
	Type            models.TransactionType `json:"transaction_type" binding:"required"`
	AmountBTC       decimal.Decimal        `json:"amount_btc" binding:"required"`
	PricePerBTCUSD  decimal.Decimal        `json:"price_per_btc_usd" binding:"required"`
	Currency        string                 `json:"currency"`
	TransactionDate time.Time              `json:"transaction_date" binding:"required"`
	Fee             *decimal.Decimal       `json:"fee"`
	FeeCurrency     string                 `json:"fee_currency"`
	Notes           string                 `json:"notes"`
}

// CreateManual appends one manual entry and folds its signed amount into the
// wallet's running balance under the per-wallet lock.
func (s *TransactionService) CreateManual(ctx context.Context, userID, walletID string, req CreateTransactionRequest) (*models.Transaction, error) {
	if req.Type != models.TypeManualBuy && req.Type != models.TypeManualSell {
		return nil, fmt.Errorf("transaction type %q cannot be created manually", req.Type)
	}
	if !req.AmountBTC.IsPositive() {
		return nil, fmt.Errorf("amount_btc must be positive")
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	tx := &models.Transaction{
		WalletID:        walletID,
		Type:            req.Type,
		AmountBTC:       req.AmountBTC,
		PricePerBTCUSD:  req.PricePerBTCUSD,
		TotalValueUSD:   req.AmountBTC.Mul(req.PricePerBTCUSD),
		Currency:        currency,
		TransactionDate: req.TransactionDate,
		Fee:             req.Fee,
		FeeCurrency:     req.FeeCurrency,
		Notes:           req.Notes,
		Origin:          models.OriginManual,
	}

	lock, err := s.locker.AcquireWalletLock(ctx, walletID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("wallet busy: %w", err)
	}
	defer func() {
		if err := s.locker.ReleaseWalletLock(ctx, lock); err != nil {
			s.log.WithError(err).Warn("Failed to release wallet lock")
		}
	}()

	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != userID {
		return nil, repositories.ErrWalletNotFound
	}

	if err := s.transactions.Insert(ctx, tx); err != nil {
		return nil, err
	}

	wallet.BTCHoldings = wallet.BTCHoldings.Add(tx.SignedAmountBTC())
	if err := s.wallets.Update(ctx, wallet); err != nil {
		// The ledger row is already in; the balance will be off until the
		// next successful update. The engine is unaffected because it
		// reconstructs from the ledger.
		s.log.WithError(err).WithField("wallet_id", walletID).Error("Failed to update wallet holdings")
		return nil, err
	}

	s.publisher.PublishTransaction(tx)

	s.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"type":      tx.Type,
		"amount":    tx.AmountBTC.String(),
	}).Info("Manual transaction recorded")

	return tx, nil
}

// List returns the wallet's full ledger ascending by date.
func (s *TransactionService) List(ctx context.Context, userID, walletID string) ([]models.Transaction, error) {
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != userID {
		return nil, repositories.ErrWalletNotFound
	}
	return s.transactions.FindByWallet(ctx, walletID, time.Now().UTC())
}
