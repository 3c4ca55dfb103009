package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

func TestWalletCreate_DefaultsCurrency(t *testing.T) {
	wallets := new(MockWalletRepository)
	wallets.On("Create", mock.Anything, mock.MatchedBy(func(w *models.Wallet) bool {
		return w.UserID == "u1" && w.Currency == "USD" && w.BTCHoldings.IsZero()
	})).Return(nil)

	s := NewWalletService(wallets)

	wallet, err := s.Create(context.Background(), "u1", CreateWalletRequest{Label: "savings"})
	require.NoError(t, err)
	assert.Equal(t, "savings", wallet.Label)
	wallets.AssertExpectations(t)
}

func TestWalletGet_EnforcesOwnership(t *testing.T) {
	wallet := &models.Wallet{ID: primitive.NewObjectID(), UserID: "someone-else"}

	wallets := new(MockWalletRepository)
	wallets.On("GetByID", mock.Anything, wallet.ID.Hex()).Return(wallet, nil)

	s := NewWalletService(wallets)

	_, err := s.Get(context.Background(), "u1", wallet.ID.Hex())
	assert.ErrorIs(t, err, repositories.ErrWalletNotFound)
}

func TestConfigureDCA_ReplacesSettings(t *testing.T) {
	executed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	wallet := &models.Wallet{
		ID:     primitive.NewObjectID(),
		UserID: "u1",
		DCASettings: []models.DCAConfig{{
			Amount:       decimal.NewFromInt(50),
			Frequency:    models.FrequencyDaily,
			LastExecuted: &executed,
		}},
	}

	wallets := new(MockWalletRepository)
	wallets.On("GetByID", mock.Anything, wallet.ID.Hex()).Return(wallet, nil)
	wallets.On("Update", mock.Anything, wallet).Return(nil)

	s := NewWalletService(wallets)

	updated, err := s.ConfigureDCA(context.Background(), "u1", wallet.ID.Hex(), ConfigureDCARequest{
		Enabled: true,
		Settings: []DCAConfigRequest{{
			Amount:    decimal.NewFromInt(100),
			Frequency: models.FrequencyMonthly,
		}},
	})
	require.NoError(t, err)

	require.Len(t, updated.DCASettings, 1)
	cfg := updated.DCASettings[0]
	assert.True(t, cfg.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, models.FrequencyMonthly, cfg.Frequency)
	assert.Equal(t, "USD", cfg.Currency)
	// Replacing the schedule restarts it.
	assert.Nil(t, cfg.LastExecuted)
	assert.True(t, updated.DCAEnabled)
}

func TestConfigureDCA_RejectsNonPositiveAmount(t *testing.T) {
	wallet := &models.Wallet{ID: primitive.NewObjectID(), UserID: "u1"}

	wallets := new(MockWalletRepository)
	wallets.On("GetByID", mock.Anything, wallet.ID.Hex()).Return(wallet, nil)

	s := NewWalletService(wallets)

	_, err := s.ConfigureDCA(context.Background(), "u1", wallet.ID.Hex(), ConfigureDCARequest{
		Enabled: true,
		Settings: []DCAConfigRequest{{
			Amount:    decimal.Zero,
			Frequency: models.FrequencyDaily,
		}},
	})
	assert.Error(t, err)
	wallets.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
