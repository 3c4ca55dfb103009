package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// SpotPricer serves the current BTC price for a fiat currency.
type SpotPricer interface {
	Spot(ctx context.Context, currency string) (decimal.Decimal, error)
}

// DCAService executes recurring buys for every wallet with DCA enabled.
type DCAService struct {
	wallets      repositories.WalletRepository
	transactions repositories.TransactionRepository
	prices       SpotPricer
	locker       WalletLocker
	publisher    EventPublisher
	lockTTL      time.Duration
	now          func() time.Time
	log          *logrus.Entry
}

// NewDCAService creates a DCA execution service.
func NewDCAService(wallets repositories.WalletRepository, transactions repositories.TransactionRepository,
	prices SpotPricer, locker WalletLocker, publisher EventPublisher, lockTTL time.Duration) *DCAService {
	return &DCAService{
		wallets:      wallets,
		transactions: transactions,
		prices:       prices,
		locker:       locker,
		publisher:    publisher,
		lockTTL:      lockTTL,
		now:          time.Now,
		log:          logrus.WithField("component", "dca_service"),
	}
}

// RunSweep evaluates every DCA-enabled wallet once and returns how many
// purchases were executed. Each configuration on a wallet is an independent
// rule; a failure on one wallet never stops the sweep.
func (s *DCAService) RunSweep(ctx context.Context) int {
	wallets, err := s.wallets.FindDCAEnabled(ctx)
	if err != nil {
		s.log.WithError(err).Error("DCA sweep: failed to list wallets")
		return 0
	}

	var executed int
	for i := range wallets {
		n, err := s.executeWallet(ctx, &wallets[i])
		if err != nil {
			s.log.WithError(err).WithField("wallet_id", wallets[i].ID.Hex()).Warn("DCA sweep: wallet skipped")
			continue
		}
		executed += n
	}

	s.log.WithFields(logrus.Fields{
		"wallets":  len(wallets),
		"executed": executed,
	}).Info("DCA sweep finished")

	return executed
}

// executeWallet runs all due configurations for one wallet and returns how
// many purchases were made.
func (s *DCAService) executeWallet(ctx context.Context, wallet *models.Wallet) (int, error) {
	now := s.now().UTC()

	due := make([]int, 0, len(wallet.DCASettings))
	for i := range wallet.DCASettings {
		if s.isDue(&wallet.DCASettings[i], now) {
			due = append(due, i)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	lock, err := s.locker.AcquireWalletLock(ctx, wallet.ID.Hex(), s.lockTTL)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := s.locker.ReleaseWalletLock(ctx, lock); err != nil {
			s.log.WithError(err).Warn("Failed to release wallet lock")
		}
	}()

	// Reload under the lock: another instance may have executed between
	// listing and locking.
	fresh, err := s.wallets.GetByID(ctx, wallet.ID.Hex())
	if err != nil {
		return 0, err
	}

	var executed int
	for i := range fresh.DCASettings {
		cfg := &fresh.DCASettings[i]
		if !s.isDue(cfg, now) {
			continue
		}
		if s.executeConfig(ctx, fresh, cfg, now) {
			executed++
		}
	}

	if executed == 0 {
		return 0, nil
	}

	if err := s.wallets.Update(ctx, fresh); err != nil {
		return executed, err
	}
	return executed, nil
}

// executeConfig performs one purchase. It mutates the wallet in memory; the
// caller persists. A missing or gated price skips the rule without touching
// LastExecuted, so the next sweep retries.
func (s *DCAService) executeConfig(ctx context.Context, wallet *models.Wallet, cfg *models.DCAConfig, now time.Time) bool {
	price, err := s.prices.Spot(ctx, "usd")
	if err != nil {
		s.log.WithError(err).WithField("wallet_id", wallet.ID.Hex()).Warn("DCA: no spot price, skipping")
		return false
	}
	if !price.IsPositive() {
		s.log.WithField("wallet_id", wallet.ID.Hex()).Warn("DCA: non-positive spot price, skipping")
		return false
	}

	if cfg.PriceRangeMin != nil && price.LessThan(*cfg.PriceRangeMin) {
		s.log.WithFields(logrus.Fields{
			"wallet_id": wallet.ID.Hex(),
			"price":     price.String(),
			"min":       cfg.PriceRangeMin.String(),
		}).Info("DCA: price below range, skipping")
		return false
	}
	if cfg.PriceRangeMax != nil && price.GreaterThan(*cfg.PriceRangeMax) {
		s.log.WithFields(logrus.Fields{
			"wallet_id": wallet.ID.Hex(),
			"price":     price.String(),
			"max":       cfg.PriceRangeMax.String(),
		}).Info("DCA: price above range, skipping")
		return false
	}

	amountBTC := cfg.Amount.Div(price)

	tx := &models.Transaction{
		WalletID:        wallet.ID.Hex(),
		Type:            models.TypeDCABuy,
		AmountBTC:       amountBTC,
		PricePerBTCUSD:  price,
		TotalValueUSD:   cfg.Amount,
		Currency:        cfg.Currency,
		TransactionDate: now,
		Origin:          models.OriginDCA,
	}

	if err := s.transactions.Insert(ctx, tx); err != nil {
		s.log.WithError(err).WithField("wallet_id", wallet.ID.Hex()).Error("DCA: failed to insert transaction")
		return false
	}

	wallet.BTCHoldings = wallet.BTCHoldings.Add(amountBTC)
	executedAt := now
	cfg.LastExecuted = &executedAt

	s.publisher.PublishTransaction(tx)

	s.log.WithFields(logrus.Fields{
		"wallet_id":  wallet.ID.Hex(),
		"amount_usd": cfg.Amount.String(),
		"amount_btc": amountBTC.String(),
		"price":      price.String(),
	}).Info("DCA purchase executed")

	return true
}

// isDue decides whether a configuration should fire now. Daily rules fire
// when never run or at least 24h have passed. Monthly rules fire when never
// run or the calendar month strictly advanced. Unknown frequencies never
// fire.
func (s *DCAService) isDue(cfg *models.DCAConfig, now time.Time) bool {
	switch cfg.Frequency {
	case models.FrequencyDaily:
		if cfg.LastExecuted == nil {
			return true
		}
		return now.Sub(cfg.LastExecuted.UTC()) >= 24*time.Hour
	case models.FrequencyMonthly:
		if cfg.LastExecuted == nil {
			return true
		}
		last := cfg.LastExecuted.UTC()
		if now.Year() != last.Year() {
			return now.Year() > last.Year()
		}
		return now.Month() > last.Month()
	default:
		return false
	}
}
