package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/clients/esplora"
	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// ErrWalletAlreadySynced is returned when the user already watches this
// address; reloading is the way to pick up new transactions.
var ErrWalletAlreadySynced = errors.New("a wallet already watches this address")

// HistoricalPricer values an on-chain transaction at its confirmation date.
type HistoricalPricer interface {
	GetHistoricalPrice(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error)
}

// AddressSource fetches an address's on-chain history.
type AddressSource interface {
	AddressTransactions(ctx context.Context, address string) ([]esplora.Tx, error)
}

// BlockchainService creates and reloads wallets that mirror an on-chain
// address. The address's history becomes ledger entries valued at the BTC
// price of each confirmation day.
type BlockchainService struct {
	wallets      repositories.WalletRepository
	transactions repositories.TransactionRepository
	explorer     AddressSource
	pricer       HistoricalPricer
	locker       WalletLocker
	publisher    EventPublisher
	lockTTL      time.Duration
	log          *logrus.Entry
}

// NewBlockchainService creates a blockchain sync service.
func NewBlockchainService(wallets repositories.WalletRepository, transactions repositories.TransactionRepository,
	explorer AddressSource, pricer HistoricalPricer, locker WalletLocker, publisher EventPublisher,
	lockTTL time.Duration) *BlockchainService {
	return &BlockchainService{
		wallets:      wallets,
		transactions: transactions,
		explorer:     explorer,
		pricer:       pricer,
		locker:       locker,
		publisher:    publisher,
		lockTTL:      lockTTL,
		log:          logrus.WithField("component", "blockchain_service"),
	}
}

// CreateSyncedWalletRequest carries the fields for a new synced wallet.
type CreateSyncedWalletRequest struct {
	Label         string `json:"label" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	Currency      string `json:"currency"`
	Notes         string `json:"notes"`
}

// CreateSyncedWallet creates a wallet from an address's full on-chain
// history.
func (s *BlockchainService) CreateSyncedWallet(ctx context.Context, userID string, req CreateSyncedWalletRequest) (*models.Wallet, error) {
	if !esplora.ValidAddress(req.WalletAddress) {
		return nil, fmt.Errorf("%w: %s", esplora.ErrInvalidAddress, req.WalletAddress)
	}

	existing, err := s.wallets.GetByAddress(ctx, req.WalletAddress)
	if err != nil && !errors.Is(err, repositories.ErrWalletNotFound) {
		return nil, err
	}
	if existing != nil && existing.UserID == userID {
		return nil, ErrWalletAlreadySynced
	}

	chainTxs, err := s.explorer.AddressTransactions(ctx, req.WalletAddress)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	balance := decimal.Zero
	synced := make([]models.SyncedTransaction, 0, len(chainTxs))
	for i := range chainTxs {
		tx := &chainTxs[i]
		if !tx.Status.Confirmed {
			continue
		}
		amount := tx.AmountFor(req.WalletAddress)
		balance = balance.Add(amount)
		synced = append(synced, models.SyncedTransaction{
			TxID:       tx.TxID,
			Amount:     amount,
			Timestamp:  tx.Time(),
			IsIncoming: tx.Incoming(req.WalletAddress),
		})
	}

	wallet := &models.Wallet{
		UserID:             userID,
		Label:              req.Label,
		Addresses:          []string{req.WalletAddress},
		Currency:           currency,
		Notes:              req.Notes,
		BTCHoldings:        balance,
		DCASettings:        []models.DCAConfig{},
		IsBlockchainSynced: true,
		WalletAddress:      req.WalletAddress,
		SyncedTransactions: synced,
		CurrentBTCBalance:  balance,
	}

	if err := s.wallets.Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.recordChainTransactions(ctx, wallet, chainTxs)

	s.log.WithFields(logrus.Fields{
		"wallet_id": wallet.ID.Hex(),
		"address":   req.WalletAddress,
		"txs":       len(synced),
		"balance":   balance.String(),
	}).Info("Blockchain-synced wallet created")

	return wallet, nil
}

// ReloadSyncedWallet fetches the address again and folds in transactions not
// seen before. Known txids are skipped.
func (s *BlockchainService) ReloadSyncedWallet(ctx context.Context, userID, walletID string) (*models.Wallet, error) {
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
	if wallet.UserID != userID || !wallet.IsBlockchainSynced {
		return nil, repositories.ErrWalletNotFound
	}

	chainTxs, err := s.explorer.AddressTransactions(ctx, wallet.WalletAddress)
	if err != nil {
		return nil, err
	}

	known := wallet.SyncedTxIDs()
	var fresh []esplora.Tx
	for i := range chainTxs {
		tx := &chainTxs[i]
		if !tx.Status.Confirmed || known[tx.TxID] {
			continue
		}
		fresh = append(fresh, *tx)
	}

	if len(fresh) == 0 {
		return wallet, nil
	}

	for i := range fresh {
		tx := &fresh[i]
		amount := tx.AmountFor(wallet.WalletAddress)
		wallet.BTCHoldings = wallet.BTCHoldings.Add(amount)
		wallet.CurrentBTCBalance = wallet.CurrentBTCBalance.Add(amount)
		wallet.SyncedTransactions = append(wallet.SyncedTransactions, models.SyncedTransaction{
			TxID:       tx.TxID,
			Amount:     amount,
			Timestamp:  tx.Time(),
			IsIncoming: tx.Incoming(wallet.WalletAddress),
		})
	}

	if err := s.wallets.Update(ctx, wallet); err != nil {
		return nil, err
	}

	s.recordChainTransactions(ctx, wallet, fresh)

	s.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"new_txs":   len(fresh),
	}).Info("Blockchain-synced wallet reloaded")

	return wallet, nil
}

// recordChainTransactions mirrors on-chain history into the ledger, valuing
// each entry at the BTC price of its confirmation day. A txid already in the
// ledger is skipped; a missing historical price values the entry at zero
// rather than dropping it.
func (s *BlockchainService) recordChainTransactions(ctx context.Context, wallet *models.Wallet, chainTxs []esplora.Tx) {
	for i := range chainTxs {
		tx := &chainTxs[i]
		if !tx.Status.Confirmed {
			continue
		}

		exists, err := s.transactions.ExistsByTxID(ctx, wallet.ID.Hex(), tx.TxID)
		if err != nil {
			s.log.WithError(err).WithField("txid", tx.TxID).Warn("Failed to check txid, skipping")
			continue
		}
		if exists {
			continue
		}

		amount := tx.AmountFor(wallet.WalletAddress)
		txType := models.TypeBlockchainOut
		if tx.Incoming(wallet.WalletAddress) {
			txType = models.TypeBlockchainIn
		}

		confirmedAt := tx.Time()
		price, err := s.pricer.GetHistoricalPrice(ctx, confirmedAt, "usd")
		if err != nil {
			s.log.WithError(err).WithField("txid", tx.TxID).Warn("No historical price, valuing at zero")
			price = decimal.Zero
		}

		entry := &models.Transaction{
			WalletID:        wallet.ID.Hex(),
			Type:            txType,
			AmountBTC:       amount.Abs(),
			PricePerBTCUSD:  price,
			TotalValueUSD:   amount.Abs().Mul(price),
			Currency:        "USD",
			TransactionDate: confirmedAt,
			TxID:            tx.TxID,
			Origin:          models.OriginManual,
		}

		if err := s.transactions.Insert(ctx, entry); err != nil {
			s.log.WithError(err).WithField("txid", tx.TxID).Warn("Failed to record chain transaction")
			continue
		}
		s.publisher.PublishTransaction(entry)
	}
}
