package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"dcawallet-api/internal/models"
	"dcawallet-api/pkg/cache"
)

type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetByUser(ctx context.Context, userID string) ([]models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) FindDCAEnabled(ctx context.Context) ([]models.Wallet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ListIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWalletRepository) Update(ctx context.Context, wallet *models.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) InsertMany(ctx context.Context, txs []models.Transaction) error {
	args := m.Called(ctx, txs)
	return args.Error(0)
}

func (m *MockTransactionRepository) FindByWallet(ctx context.Context, walletID string, until time.Time) ([]models.Transaction, error) {
	args := m.Called(ctx, walletID, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindEarliest(ctx context.Context, walletID string) (*models.Transaction, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ExistsByTxID(ctx context.Context, walletID, txid string) (bool, error) {
	args := m.Called(ctx, walletID, txid)
	return args.Bool(0), args.Error(1)
}

type MockSummaryRepository struct {
	mock.Mock
}

func (m *MockSummaryRepository) ExistsForDay(ctx context.Context, walletID string, timespan models.Timespan, date string) (bool, error) {
	args := m.Called(ctx, walletID, timespan, date)
	return args.Bool(0), args.Error(1)
}

func (m *MockSummaryRepository) Insert(ctx context.Context, summary *models.DailySummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockSummaryRepository) FindByWallet(ctx context.Context, walletID string, timespan models.Timespan, limit int64) ([]models.DailySummary, error) {
	args := m.Called(ctx, walletID, timespan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DailySummary), args.Error(1)
}

type MockSpotPricer struct {
	mock.Mock
}

func (m *MockSpotPricer) Spot(ctx context.Context, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockPerformanceCalculator struct {
	mock.Mock
}

func (m *MockPerformanceCalculator) Calculate(ctx context.Context, walletID string, timespan models.Timespan) (*models.PerformanceResult, error) {
	args := m.Called(ctx, walletID, timespan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PerformanceResult), args.Error(1)
}

// noopLocker hands out locks without a backing store. Service tests exercise
// the logic around the lock, not the lock itself.
type noopLocker struct{}

func (noopLocker) AcquireWalletLock(ctx context.Context, walletID string, ttl time.Duration) (*cache.WalletLock, error) {
	return &cache.WalletLock{}, nil
}

func (noopLocker) ReleaseWalletLock(ctx context.Context, lock *cache.WalletLock) error {
	return nil
}

// capturingPublisher records every published transaction.
type capturingPublisher struct {
	published []*models.Transaction
}

func (p *capturingPublisher) PublishTransaction(tx *models.Transaction) {
	p.published = append(p.published, tx)
}
