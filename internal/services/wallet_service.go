package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// WalletService owns wallet lifecycle and DCA configuration.
type WalletService struct {
	wallets repositories.WalletRepository
	log     *logrus.Entry
}

// NewWalletService creates a wallet service.
func NewWalletService(wallets repositories.WalletRepository) *WalletService {
	return &WalletService{
		wallets: wallets,
		log:     logrus.WithField("component", "wallet_service"),
	}
}

// CreateWalletRequest carries the fields a user supplies for a new wallet.
type CreateWalletRequest struct {
	Label     string   `json:"label" binding:"required"`
	Addresses []string `json:"addresses"`
	Currency  string   `json:"currency"`
	Notes     string   `json:"notes"`
}

// Create stores a new empty wallet for the user.
func (s *WalletService) Create(ctx context.Context, userID string, req CreateWalletRequest) (*models.Wallet, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	wallet := &models.Wallet{
		UserID:      userID,
		Label:       req.Label,
		Addresses:   req.Addresses,
		Currency:    currency,
		Notes:       req.Notes,
		BTCHoldings: decimal.Zero,
		DCASettings: []models.DCAConfig{},
	}

	if err := s.wallets.Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"wallet_id": wallet.ID.Hex(),
		"user_id":   userID,
	}).Info("Wallet created")

	return wallet, nil
}

// Get returns one wallet, enforcing ownership.
func (s *WalletService) Get(ctx context.Context, userID, walletID string) (*models.Wallet, error) {
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != userID {
		return nil, repositories.ErrWalletNotFound
	}
	return wallet, nil
}

// List returns all wallets owned by the user.
func (s *WalletService) List(ctx context.Context, userID string) ([]models.Wallet, error) {
	return s.wallets.GetByUser(ctx, userID)
}

// Delete removes a wallet, enforcing ownership.
func (s *WalletService) Delete(ctx context.Context, userID, walletID string) error {
	if _, err := s.Get(ctx, userID, walletID); err != nil {
		return err
	}
	return s.wallets.Delete(ctx, walletID)
}

// ConfigureDCARequest replaces a wallet's recurring-buy rules.
type ConfigureDCARequest struct {
	Enabled  bool               `json:"enabled"`
	Settings []DCAConfigRequest `json:"settings" binding:"dive"`
}

// DCAConfigRequest is one rule in a ConfigureDCARequest.
type DCAConfigRequest struct {
	Amount        decimal.Decimal  `json:"amount" binding:"required"`
	Currency      string           `json:"currency"`
	Frequency     string           `json:"frequency" binding:"required,oneof=daily monthly"`
	PriceRangeMin *decimal.Decimal `json:"price_range_min"`
	PriceRangeMax *decimal.Decimal `json:"price_range_max"`
}

// ConfigureDCA replaces the wallet's DCA settings wholesale. LastExecuted of
// existing rules is not carried over: replacing the schedule restarts it.
func (s *WalletService) ConfigureDCA(ctx context.Context, userID, walletID string, req ConfigureDCARequest) (*models.Wallet, error) {
	wallet, err := s.Get(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}

	settings := make([]models.DCAConfig, 0, len(req.Settings))
	for _, cfg := range req.Settings {
		if !cfg.Amount.IsPositive() {
			return nil, fmt.Errorf("dca amount must be positive")
		}
		currency := cfg.Currency
		if currency == "" {
			currency = "USD"
		}
		settings = append(settings, models.DCAConfig{
			Amount:        cfg.Amount,
			Currency:      currency,
			Frequency:     cfg.Frequency,
			PriceRangeMin: cfg.PriceRangeMin,
			PriceRangeMax: cfg.PriceRangeMax,
		})
	}

	wallet.DCAEnabled = req.Enabled
	wallet.DCASettings = settings

	if err := s.wallets.Update(ctx, wallet); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"enabled":   req.Enabled,
		"rules":     len(settings),
	}).Info("DCA configuration updated")

	return wallet, nil
}
