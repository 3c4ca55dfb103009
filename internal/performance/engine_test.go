package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dcawallet-api/internal/models"
)

type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) GetDailySeries(ctx context.Context, days int, currency string) ([]models.PricePoint, error) {
	args := m.Called(ctx, days, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PricePoint), args.Error(1)
}

type MockTransactionLedger struct {
	mock.Mock
}

func (m *MockTransactionLedger) FindByWallet(ctx context.Context, walletID string, until time.Time) ([]models.Transaction, error) {
	args := m.Called(ctx, walletID, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockTransactionLedger) FindEarliest(ctx context.Context, walletID string) (*models.Transaction, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func newTestEngine(prices *MockPriceProvider, ledger *MockTransactionLedger, now time.Time) *Engine {
	e := NewEngine(prices, ledger)
	e.now = func() time.Time { return now }
	return e
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		panic(err)
	}
	return t
}

func pricePoint(date string, price int64) models.PricePoint {
	return models.PricePoint{
		TimestampMS: day(date + "T12:00:00Z").UnixMilli(),
		Price:       decimal.NewFromInt(price),
	}
}

func buy(date string, amountBTC string, price int64) models.Transaction {
	amount := decimal.RequireFromString(amountBTC)
	p := decimal.NewFromInt(price)
	return models.Transaction{
		WalletID:        "w1",
		Type:            models.TypeManualBuy,
		AmountBTC:       amount,
		PricePerBTCUSD:  p,
		TotalValueUSD:   amount.Mul(p),
		TransactionDate: day(date),
	}
}

func sell(date string, amountBTC string, price int64) models.Transaction {
	tx := buy(date, amountBTC, price)
	tx.Type = models.TypeManualSell
	return tx
}

func TestCalculate_InvalidTimespan(t *testing.T) {
	engine := newTestEngine(new(MockPriceProvider), new(MockTransactionLedger), day("2024-06-10T12:00:00Z"))

	_, err := engine.Calculate(context.Background(), "w1", models.Timespan("2w"))

	assert.ErrorIs(t, err, ErrInvalidTimespan)
}

func TestCalculate_AllWithEmptyLedger(t *testing.T) {
	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindEarliest", mock.Anything, "w1").Return(nil, nil)

	engine := newTestEngine(prices, ledger, day("2024-06-10T12:00:00Z"))

	_, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)

	assert.ErrorIs(t, err, ErrNoTransactions)
	prices.AssertNotCalled(t, "GetDailySeries", mock.Anything, mock.Anything, mock.Anything)
}

func TestCalculate_ProviderFailure(t *testing.T) {
	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	prices.On("GetDailySeries", mock.Anything, mock.Anything, "usd").Return(nil, errors.New("network down"))

	engine := newTestEngine(prices, ledger, day("2024-06-10T12:00:00Z"))

	_, err := engine.Calculate(context.Background(), "w1", models.Timespan7d)

	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestCalculate_EmptySeries(t *testing.T) {
	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	prices.On("GetDailySeries", mock.Anything, mock.Anything, "usd").Return([]models.PricePoint{}, nil)

	engine := newTestEngine(prices, ledger, day("2024-06-10T12:00:00Z"))

	_, err := engine.Calculate(context.Background(), "w1", models.Timespan7d)

	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

// A single 0.1 BTC purchase at 50k, with the price finishing at 60k three
// days later, must show a 6000 final value on a 5000 cost basis: 1000 profit,
// 20 percent.
func TestCalculate_ThreeDayAppreciation(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	first := buy("2024-06-08T10:00:00Z", "0.1", 50000)

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)

	ledger.On("FindEarliest", mock.Anything, "w1").Return(&first, nil)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{first}, nil)
	prices.On("GetDailySeries", mock.Anything, 3, "usd").Return([]models.PricePoint{
		pricePoint("2024-06-08", 50000),
		pricePoint("2024-06-09", 55000),
		pricePoint("2024-06-10", 60000),
	}, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	require.Len(t, result.PortfolioHistory, 3)

	assert.Equal(t, "2024-06-08", result.PortfolioHistory[0].Date)
	assert.True(t, result.PortfolioHistory[0].PortfolioValueUSD.Equal(decimal.NewFromInt(5000)))
	assert.True(t, result.PortfolioHistory[1].PortfolioValueUSD.Equal(decimal.NewFromInt(5500)))
	assert.True(t, result.PortfolioHistory[2].PortfolioValueUSD.Equal(decimal.NewFromInt(6000)))

	s := result.Summary
	assert.True(t, s.FinalValueUSD.Equal(decimal.NewFromInt(6000)), "final value: %s", s.FinalValueUSD)
	assert.True(t, s.TotalInvestedUSD.Equal(decimal.NewFromInt(5000)), "invested: %s", s.TotalInvestedUSD)
	assert.True(t, s.ProfitLossUSD.Equal(decimal.NewFromInt(1000)), "profit: %s", s.ProfitLossUSD)
	assert.True(t, s.ProfitLossPercent.Equal(decimal.NewFromInt(20)), "percent: %s", s.ProfitLossPercent)
	assert.True(t, s.AverageBuyPriceUSD.Equal(decimal.NewFromInt(50000)))
	assert.True(t, s.FinalBTCBalance.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, s.BTCPriceStart.Equal(decimal.NewFromInt(50000)))
	assert.True(t, s.BTCPriceEnd.Equal(decimal.NewFromInt(60000)))
	assert.True(t, s.BTCPriceChangePct.Equal(decimal.NewFromInt(20)))
	assert.True(t, s.MaxValueUSD.Equal(decimal.NewFromInt(6000)))
	assert.True(t, s.MinValueUSD.Equal(decimal.NewFromInt(5000)))
	assert.True(t, s.AverageValueUSD.Equal(decimal.NewFromInt(5500)))
	assert.True(t, s.ContributionsDuringPeriodUSD.Equal(decimal.NewFromInt(5000)))

	// The summary must agree with the last history point.
	last := result.PortfolioHistory[len(result.PortfolioHistory)-1]
	assert.True(t, s.FinalValueUSD.Equal(last.PortfolioValueUSD))
	assert.True(t, s.FinalBTCBalance.Equal(last.BTCBalance))
}

// Transactions older than a fixed window contribute to the opening balance
// and cost basis, but not to the window's contributions.
func TestCalculate_PreWindowCarry(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	old := buy("2024-01-15T09:00:00Z", "0.5", 40000)
	recent := buy("2024-06-09T09:00:00Z", "0.1", 60000)

	series := make([]models.PricePoint, 0, 8)
	for d := 3; d <= 10; d++ {
		series = append(series, pricePoint(time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), 60000))
	}

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{old, recent}, nil)
	prices.On("GetDailySeries", mock.Anything, 8, "usd").Return(series, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.Timespan7d)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)

	// Opening day already holds the carried 0.5 BTC.
	assert.True(t, result.PortfolioHistory[0].BTCBalance.Equal(decimal.RequireFromString("0.5")))

	s := result.Summary
	assert.True(t, s.FinalBTCBalance.Equal(decimal.RequireFromString("0.6")))
	// invested = 0.5*40000 + 0.1*60000; contributions only the in-window buy.
	assert.True(t, s.TotalInvestedUSD.Equal(decimal.NewFromInt(26000)))
	assert.True(t, s.ContributionsDuringPeriodUSD.Equal(decimal.NewFromInt(6000)))
}

// A transaction dated exactly at the window start belongs to the window.
func TestCalculate_WindowStartTieBreak(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	windowStart := now.AddDate(0, 0, -7)
	atStart := buy(windowStart.Format("2006-01-02T15:04:05Z"), "0.2", 50000)
	justBefore := buy(windowStart.Add(-time.Second).Format("2006-01-02T15:04:05Z"), "0.3", 50000)

	series := make([]models.PricePoint, 0, 8)
	for d := 3; d <= 10; d++ {
		series = append(series, pricePoint(time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), 50000))
	}

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{justBefore, atStart}, nil)
	prices.On("GetDailySeries", mock.Anything, 8, "usd").Return(series, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.Timespan7d)
	require.NoError(t, err)

	// Only the tx at the boundary counts as a window contribution.
	assert.True(t, result.Summary.ContributionsDuringPeriodUSD.Equal(decimal.NewFromInt(10000)))
	assert.True(t, result.Summary.FinalBTCBalance.Equal(decimal.RequireFromString("0.5")))
}

// A day the provider has no price for values to zero without stopping the
// walk.
func TestCalculate_MissingPriceDay(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	first := buy("2024-06-08T10:00:00Z", "1", 50000)

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindEarliest", mock.Anything, "w1").Return(&first, nil)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{first}, nil)
	prices.On("GetDailySeries", mock.Anything, 3, "usd").Return([]models.PricePoint{
		pricePoint("2024-06-08", 50000),
		// 06-09 missing
		pricePoint("2024-06-10", 52000),
	}, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)
	require.NoError(t, err)
	require.Len(t, result.PortfolioHistory, 3)

	assert.True(t, result.PortfolioHistory[1].PortfolioValueUSD.IsZero())
	assert.True(t, result.PortfolioHistory[1].BTCBalance.Equal(decimal.NewFromInt(1)), "balance survives the gap")
	assert.True(t, result.PortfolioHistory[2].PortfolioValueUSD.Equal(decimal.NewFromInt(52000)))
}

// Sells reduce both balance and cost basis.
func TestCalculate_BuyThenSell(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	b := buy("2024-06-08T10:00:00Z", "1", 50000)
	s := sell("2024-06-09T10:00:00Z", "0.4", 55000)

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindEarliest", mock.Anything, "w1").Return(&b, nil)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{b, s}, nil)
	prices.On("GetDailySeries", mock.Anything, 3, "usd").Return([]models.PricePoint{
		pricePoint("2024-06-08", 50000),
		pricePoint("2024-06-09", 55000),
		pricePoint("2024-06-10", 60000),
	}, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)
	require.NoError(t, err)

	assert.True(t, result.PortfolioHistory[1].BTCBalance.Equal(decimal.RequireFromString("0.6")))
	// invested = 50000 - 0.4*55000 = 28000
	assert.True(t, result.Summary.TotalInvestedUSD.Equal(decimal.NewFromInt(28000)))
	assert.True(t, result.Summary.FinalValueUSD.Equal(decimal.NewFromInt(36000)))
}

// On-chain ledger rows carry direction in their type: blockchain_in adds to
// the balance and blockchain_out subtracts, mirroring what the sync service
// did to the wallet's running total.
func TestCalculate_BlockchainLedgerRows(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	in := buy("2024-06-08T10:00:00Z", "1", 50000)
	in.Type = models.TypeBlockchainIn
	out := buy("2024-06-09T10:00:00Z", "0.4", 55000)
	out.Type = models.TypeBlockchainOut

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindEarliest", mock.Anything, "w1").Return(&in, nil)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{in, out}, nil)
	prices.On("GetDailySeries", mock.Anything, 3, "usd").Return([]models.PricePoint{
		pricePoint("2024-06-08", 50000),
		pricePoint("2024-06-09", 55000),
		pricePoint("2024-06-10", 60000),
	}, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)
	require.NoError(t, err)

	assert.True(t, result.PortfolioHistory[0].BTCBalance.Equal(decimal.NewFromInt(1)))
	assert.True(t, result.PortfolioHistory[1].BTCBalance.Equal(decimal.RequireFromString("0.6")))
	assert.True(t, result.Summary.FinalBTCBalance.Equal(decimal.RequireFromString("0.6")))
	assert.True(t, result.Summary.FinalValueUSD.Equal(decimal.NewFromInt(36000)))
}

// The same inputs always produce the same outputs.
func TestCalculate_Idempotent(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")
	first := buy("2024-06-08T10:00:00Z", "0.1", 50000)

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindEarliest", mock.Anything, "w1").Return(&first, nil)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{first}, nil)
	prices.On("GetDailySeries", mock.Anything, 3, "usd").Return([]models.PricePoint{
		pricePoint("2024-06-08", 50000),
		pricePoint("2024-06-09", 55000),
		pricePoint("2024-06-10", 60000),
	}, nil)

	engine := newTestEngine(prices, ledger, now)

	a, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)
	require.NoError(t, err)
	b, err := engine.Calculate(context.Background(), "w1", models.TimespanAll)
	require.NoError(t, err)

	require.Equal(t, len(a.PortfolioHistory), len(b.PortfolioHistory))
	for i := range a.PortfolioHistory {
		assert.True(t, a.PortfolioHistory[i].PortfolioValueUSD.Equal(b.PortfolioHistory[i].PortfolioValueUSD))
	}
	assert.True(t, a.Summary.ProfitLossUSD.Equal(b.Summary.ProfitLossUSD))
}

// An empty window still yields a result, not an error, for fixed timespans.
func TestCalculate_FixedTimespanEmptyLedger(t *testing.T) {
	now := day("2024-06-10T12:00:00Z")

	series := make([]models.PricePoint, 0, 8)
	for d := 3; d <= 10; d++ {
		series = append(series, pricePoint(time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), 50000))
	}

	prices := new(MockPriceProvider)
	ledger := new(MockTransactionLedger)
	ledger.On("FindByWallet", mock.Anything, "w1", now).Return([]models.Transaction{}, nil)
	prices.On("GetDailySeries", mock.Anything, 8, "usd").Return(series, nil)

	engine := newTestEngine(prices, ledger, now)

	result, err := engine.Calculate(context.Background(), "w1", models.Timespan7d)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)

	assert.True(t, result.Summary.FinalBTCBalance.IsZero())
	assert.True(t, result.Summary.FinalValueUSD.IsZero())
	assert.True(t, result.Summary.ProfitLossPercent.IsZero(), "zero invested must not divide")
}
