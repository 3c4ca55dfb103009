package performance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
)

// Sentinel errors surfaced to callers. Controllers map these onto HTTP
// status codes; everything else is an internal failure.
var (
	// ErrInvalidTimespan is returned before any I/O when the requested
	// timespan is not one of 7d/30d/90d/365d/ALL.
	ErrInvalidTimespan = errors.New("invalid timespan")

	// ErrNoTransactions is returned for the ALL timespan when the wallet's
	// ledger is empty, because the window cannot be anchored.
	ErrNoTransactions = errors.New("no transactions found for wallet")

	// ErrPriceUnavailable is returned when the external price provider
	// yields no usable series. There is no fallback and no retry.
	ErrPriceUnavailable = errors.New("price data unavailable")
)

// seriesPadDays is how far the fetched price series is extended past the
// resolved window to guarantee coverage at the start boundary.
const seriesPadDays = 1

// PriceProvider supplies the external daily price series.
type PriceProvider interface {
	GetDailySeries(ctx context.Context, days int, currency string) ([]models.PricePoint, error)
}

// TransactionLedger is the read side of the append-only transaction store.
type TransactionLedger interface {
	FindByWallet(ctx context.Context, walletID string, until time.Time) ([]models.Transaction, error)
	FindEarliest(ctx context.Context, walletID string) (*models.Transaction, error)
}

// Engine reconstructs a wallet's daily BTC balance and USD value over a
// historical window from the raw ledger, joined against the daily price
// series. It holds no state between computations and never caches: two runs
// with the same ledger produce identical output.
type Engine struct {
	prices PriceProvider
	ledger TransactionLedger
	now    func() time.Time
	log    *logrus.Entry
}

// NewEngine creates a performance engine.
func NewEngine(prices PriceProvider, ledger TransactionLedger) *Engine {
	return &Engine{
		prices: prices,
		ledger: ledger,
		now:    time.Now,
		log:    logrus.WithField("component", "performance"),
	}
}

// window is a resolved [start, end] day range.
type window struct {
	start time.Time
	end   time.Time
	days  int
}

// resolveWindow maps a timespan onto a concrete window. For ALL the window
// is anchored at the wallet's earliest transaction.
func (e *Engine) resolveWindow(ctx context.Context, walletID string, timespan models.Timespan) (window, error) {
	end := e.now().UTC()

	if days, ok := timespan.Days(); ok {
		return window{
			start: end.AddDate(0, 0, -days),
			end:   end,
			days:  days,
		}, nil
	}

	if timespan != models.TimespanAll {
		return window{}, fmt.Errorf("%w: %q", ErrInvalidTimespan, timespan)
	}

	first, err := e.ledger.FindEarliest(ctx, walletID)
	if err != nil {
		return window{}, fmt.Errorf("find earliest transaction: %w", err)
	}
	if first == nil {
		return window{}, fmt.Errorf("%w: %s", ErrNoTransactions, walletID)
	}

	firstDate := first.TransactionDate.UTC()
	days := int(end.Sub(firstDate).Hours() / 24)
	if days < 1 {
		days = 1
	}

	return window{
		start: truncateToDay(firstDate),
		end:   end,
		days:  days,
	}, nil
}

// Calculate computes portfolio history and the performance summary for one
// wallet over the requested timespan.
func (e *Engine) Calculate(ctx context.Context, walletID string, timespan models.Timespan) (*models.PerformanceResult, error) {
	if !timespan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimespan, timespan)
	}

	win, err := e.resolveWindow(ctx, walletID, timespan)
	if err != nil {
		return nil, err
	}

	series, err := e.prices.GetDailySeries(ctx, win.days+seriesPadDays, "usd")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty series", ErrPriceUnavailable)
	}

	all, err := e.ledger.FindByWallet(ctx, walletID, win.end)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	// A transaction dated exactly at the window start belongs to the
	// window, not to the carried-forward prefix.
	var preWindow, inWindow []models.Transaction
	for _, tx := range all {
		if tx.TransactionDate.Before(win.start) {
			preWindow = append(preWindow, tx)
		} else {
			inWindow = append(inWindow, tx)
		}
	}

	balance := decimal.Zero
	invested := decimal.Zero
	for i := range preWindow {
		tx := &preWindow[i]
		value := tx.AmountBTC.Mul(tx.PricePerBTCUSD)
		if tx.Direction() == models.DirectionBuy {
			balance = balance.Add(tx.AmountBTC)
			invested = invested.Add(value)
		} else {
			balance = balance.Sub(tx.AmountBTC)
			invested = invested.Sub(value)
		}
	}

	priceByDay := dailyPriceMap(series)

	// Group the window's transactions by calendar day, preserving ledger
	// order, and fold their value into the invested and contribution
	// accumulators.
	byDay := make(map[string][]models.Transaction)
	viewsByDay := make(map[string][]models.TransactionView)
	contributions := decimal.Zero
	for i := range inWindow {
		tx := &inWindow[i]
		day := tx.TransactionDate.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], *tx)
		viewsByDay[day] = append(viewsByDay[day], tx.View())

		value := tx.AmountBTC.Mul(tx.PricePerBTCUSD)
		if tx.Direction() == models.DirectionBuy {
			contributions = contributions.Add(value)
			invested = invested.Add(value)
		} else {
			contributions = contributions.Sub(value)
			invested = invested.Sub(value)
		}
	}

	var history []models.HistoryPoint
	lastPrice := decimal.Zero
	for day := win.start; !day.After(win.end); day = day.Add(24 * time.Hour) {
		key := day.UTC().Format("2006-01-02")

		for i := range byDay[key] {
			tx := &byDay[key][i]
			if tx.Direction() == models.DirectionBuy {
				balance = balance.Add(tx.AmountBTC)
			} else {
				balance = balance.Sub(tx.AmountBTC)
			}
		}

		// Days missing from the provider series value to zero. This only
		// blanks the single day; the walk continues.
		price := priceByDay[key]
		lastPrice = price

		history = append(history, models.HistoryPoint{
			Date:              key,
			BTCPriceUSD:       price,
			BTCBalance:        balance,
			PortfolioValueUSD: balance.Mul(price),
			Transactions:      viewsByDay[key],
		})
	}

	if len(history) == 0 {
		return &models.PerformanceResult{
			PortfolioHistory:  []models.HistoryPoint{},
			TransactionsByDay: viewsByDay,
		}, nil
	}

	summary := buildSummary(history, series, balance, invested, contributions, lastPrice)

	return &models.PerformanceResult{
		PortfolioHistory:  history,
		Summary:           summary,
		TransactionsByDay: viewsByDay,
	}, nil
}

// dailyPriceMap reduces a price series to UTC calendar day -> price. When a
// day carries several samples, the last one wins.
func dailyPriceMap(series []models.PricePoint) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(series))
	for _, p := range series {
		m[p.Day()] = p.Price
	}
	return m
}

func buildSummary(history []models.HistoryPoint, series []models.PricePoint,
	balance, invested, contributions, lastPrice decimal.Decimal) *models.PerformanceSummary {

	hundred := decimal.NewFromInt(100)

	finalValue := balance.Mul(lastPrice)
	profitLoss := finalValue.Sub(invested)
	profitLossPct := decimal.Zero
	if !invested.IsZero() {
		profitLossPct = profitLoss.Div(invested).Mul(hundred)
	}

	avgBuyPrice := decimal.Zero
	if balance.IsPositive() {
		avgBuyPrice = invested.Div(balance)
	}

	priceStart := series[0].Price
	priceEnd := series[len(series)-1].Price
	priceChangePct := decimal.Zero
	if !priceStart.IsZero() {
		priceChangePct = priceEnd.Sub(priceStart).Div(priceStart).Mul(hundred)
	}

	maxValue := history[0].PortfolioValueUSD
	minValue := history[0].PortfolioValueUSD
	sum := decimal.Zero
	for _, point := range history {
		if point.PortfolioValueUSD.GreaterThan(maxValue) {
			maxValue = point.PortfolioValueUSD
		}
		if point.PortfolioValueUSD.LessThan(minValue) {
			minValue = point.PortfolioValueUSD
		}
		sum = sum.Add(point.PortfolioValueUSD)
	}
	avgValue := sum.Div(decimal.NewFromInt(int64(len(history))))

	return &models.PerformanceSummary{
		AppreciationUSD:     profitLoss,
		AppreciationPercent: profitLossPct,
		ProfitLossUSD:       profitLoss,
		ProfitLossPercent:   profitLossPct,

		TotalInvestedUSD: invested,
		FinalValueUSD:    finalValue,

		FinalBTCBalance:    balance,
		AverageBuyPriceUSD: avgBuyPrice,
		CurrentBTCPriceUSD: lastPrice,
		BTCPriceStart:      priceStart,
		BTCPriceEnd:        priceEnd,
		BTCPriceChangePct:  priceChangePct,

		MaxValueUSD:     maxValue,
		MinValueUSD:     minValue,
		AverageValueUSD: avgValue,

		ContributionsDuringPeriodUSD: contributions,
	}
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
