package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DCA purchase frequencies. Configurations with any other frequency are
// silently skipped by the execution sweep.
const (
	FrequencyDaily   = "daily"
	FrequencyMonthly = "monthly"
)

// DCAConfig is one recurring-buy rule attached to a wallet. A wallet can
// carry several; each is evaluated independently by the DCA sweep.
type DCAConfig struct {
	Amount        decimal.Decimal  `bson:"-" json:"amount"`
	Currency      string           `bson:"currency" json:"currency"`
	Frequency     string           `bson:"frequency" json:"frequency"`
	LastExecuted  *time.Time       `bson:"last_executed,omitempty" json:"last_executed,omitempty"`
	PriceRangeMin *decimal.Decimal `bson:"-" json:"price_range_min,omitempty"`
	PriceRangeMax *decimal.Decimal `bson:"-" json:"price_range_max,omitempty"`
}

// SyncedTransaction is the wallet-embedded record of a blockchain
// transaction already folded into a synced wallet's balance. The txid set is
// used to dedup on reload.
type SyncedTransaction struct {
	TxID       string          `bson:"txid" json:"txid"`
	Amount     decimal.Decimal `bson:"-" json:"amount"`
	Timestamp  time.Time       `bson:"timestamp" json:"timestamp"`
	IsIncoming bool            `bson:"is_incoming" json:"is_incoming"`
}

// Wallet holds a user's BTC position. BTCHoldings is a denormalized running
// total maintained by every transaction producer; the performance engine
// reconstructs balances from the ledger instead of trusting it.
type Wallet struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Label     string             `bson:"label" json:"label"`
	Addresses []string           `bson:"addresses" json:"addresses"`
	Currency  string             `bson:"currency" json:"currency"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`

	BTCHoldings decimal.Decimal `bson:"-" json:"btc_holdings"`

	DCAEnabled  bool        `bson:"dca_enabled" json:"dca_enabled"`
	DCASettings []DCAConfig `bson:"dca_settings" json:"dca_settings"`

	IsBlockchainSynced bool                `bson:"is_blockchain_synced" json:"is_blockchain_synced"`
	WalletAddress      string              `bson:"wallet_address,omitempty" json:"wallet_address,omitempty"`
	SyncedTransactions []SyncedTransaction `bson:"synced_transactions" json:"synced_transactions"`
	CurrentBTCBalance  decimal.Decimal     `bson:"-" json:"current_btc_balance"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// SyncedTxIDs returns the set of blockchain txids already recorded on the
// wallet.
func (w *Wallet) SyncedTxIDs() map[string]bool {
	ids := make(map[string]bool, len(w.SyncedTransactions))
	for _, tx := range w.SyncedTransactions {
		ids[tx.TxID] = true
	}
	return ids
}
