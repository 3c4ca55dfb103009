package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PricePoint is one sample of an external daily price series.
type PricePoint struct {
	TimestampMS int64           `json:"timestamp_ms"`
	Price       decimal.Decimal `json:"price"`
}

// Day returns the UTC calendar day the point falls on, as YYYY-MM-DD.
func (p PricePoint) Day() string {
	return time.UnixMilli(p.TimestampMS).UTC().Format("2006-01-02")
}

// HistoryPoint is one day of reconstructed portfolio history.
type HistoryPoint struct {
	Date              string            `json:"date"`
	BTCPriceUSD       decimal.Decimal   `json:"btc_price_usd"`
	BTCBalance        decimal.Decimal   `json:"btc_balance"`
	PortfolioValueUSD decimal.Decimal   `json:"portfolio_value_usd"`
	Transactions      []TransactionView `json:"transactions"`
}

// PerformanceSummary aggregates a computed window into the metrics exposed
// to clients and snapshotted by the daily summary recorder.
type PerformanceSummary struct {
	AppreciationUSD     decimal.Decimal `json:"appreciation_usd"`
	AppreciationPercent decimal.Decimal `json:"appreciation_percent"`
	ProfitLossUSD       decimal.Decimal `json:"profit_loss_usd"`
	ProfitLossPercent   decimal.Decimal `json:"profit_loss_percent"`

	TotalInvestedUSD decimal.Decimal `json:"total_invested_usd"`
	FinalValueUSD    decimal.Decimal `json:"final_value_usd"`

	FinalBTCBalance      decimal.Decimal `json:"final_btc_balance"`
	AverageBuyPriceUSD   decimal.Decimal `json:"average_buy_price_usd"`
	CurrentBTCPriceUSD   decimal.Decimal `json:"current_btc_price_usd"`
	BTCPriceStart        decimal.Decimal `json:"btc_price_start"`
	BTCPriceEnd          decimal.Decimal `json:"btc_price_end"`
	BTCPriceChangePct    decimal.Decimal `json:"btc_price_change_percent"`

	MaxValueUSD     decimal.Decimal `json:"max_value_usd"`
	MinValueUSD     decimal.Decimal `json:"min_value_usd"`
	AverageValueUSD decimal.Decimal `json:"average_value_usd"`

	ContributionsDuringPeriodUSD decimal.Decimal `json:"contributions_during_period_usd"`
}

// PerformanceResult is the full output of one engine computation.
type PerformanceResult struct {
	PortfolioHistory  []HistoryPoint               `json:"portfolio_history"`
	Summary           *PerformanceSummary          `json:"summary"`
	TransactionsByDay map[string][]TransactionView `json:"transactions"`
}

// DailySummary is one persisted snapshot of a performance summary. At most
// one exists per (wallet, timespan, UTC day); the recorder enforces this
// with a check-then-insert backed by a unique index.
type DailySummary struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	WalletID  string              `bson:"wallet_id" json:"wallet_id"`
	Timespan  Timespan            `bson:"timespan" json:"timespan"`
	Date      string              `bson:"date" json:"date"`
	Summary   *PerformanceSummary `bson:"-" json:"summary"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
}
