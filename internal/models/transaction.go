package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TransactionType identifies how a transaction entered the ledger.
type TransactionType string

const (
	TypeManualBuy     TransactionType = "manual_buy"
	TypeManualSell    TransactionType = "manual_sell"
	TypeDCABuy        TransactionType = "dca_buy"
	TypeBlockchainIn  TransactionType = "blockchain_in"
	TypeBlockchainOut TransactionType = "blockchain_out"
	TypeCMCBuy        TransactionType = "cmc_buy"
	TypeCMCSell       TransactionType = "cmc_sell"
)

// TransactionOrigin marks which producer created a transaction.
type TransactionOrigin string

const (
	OriginDCA    TransactionOrigin = "dca"
	OriginManual TransactionOrigin = "manual"
)

var validTransactionTypes = map[TransactionType]bool{
	TypeManualBuy:     true,
	TypeManualSell:    true,
	TypeDCABuy:        true,
	TypeBlockchainIn:  true,
	TypeBlockchainOut: true,
	TypeCMCBuy:        true,
	TypeCMCSell:       true,
}

// ValidTransactionType reports whether t is one of the known ledger types.
func ValidTransactionType(t TransactionType) bool {
	return validTransactionTypes[t]
}

// Direction is the derived buy/sell classification of a transaction type.
// It is never stored; it is always recomputed from the type.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// DirectionOf classifies a transaction type into buy or sell.
//
// The substring rule (types containing "buy" or "in" are buys, types
// containing "sell" or "out" are sells) is a compatibility shim kept from
// earlier versions of the ledger. The sell markers are matched first:
// "blockchain_out" contains both "in" and "out", and checking buy markers
// first would turn every outgoing on-chain transfer into a buy. New
// transaction types must carry one of the four markers in their name.
func DirectionOf(t TransactionType) Direction {
	s := string(t)
	if strings.Contains(s, "sell") || strings.Contains(s, "out") {
		return DirectionSell
	}
	if strings.Contains(s, "buy") || strings.Contains(s, "in") {
		return DirectionBuy
	}
	return DirectionSell
}

// Transaction is a single append-only ledger entry for a wallet. Transactions
// are never mutated once written; corrections are new rows.
type Transaction struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	WalletID        string             `bson:"wallet_id" json:"wallet_id"`
	Type            TransactionType    `bson:"transaction_type" json:"transaction_type"`
	AmountBTC       decimal.Decimal    `bson:"-" json:"amount_btc"`
	PricePerBTCUSD  decimal.Decimal    `bson:"-" json:"price_per_btc_usd"`
	TotalValueUSD   decimal.Decimal    `bson:"-" json:"total_value_usd"`
	Currency        string             `bson:"currency" json:"currency"`
	TransactionDate time.Time          `bson:"transaction_date" json:"transaction_date"`
	Fee             *decimal.Decimal   `bson:"-" json:"fee,omitempty"`
	FeeCurrency     string             `bson:"fee_currency,omitempty" json:"fee_currency,omitempty"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	TxID            string             `bson:"txid,omitempty" json:"txid,omitempty"`
	Origin          TransactionOrigin  `bson:"origin,omitempty" json:"origin,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

// Direction returns the derived buy/sell classification of the transaction.
func (t *Transaction) Direction() Direction {
	return DirectionOf(t.Type)
}

// SignedAmountBTC returns the BTC delta this transaction applies to a
// wallet balance: positive for buys, negative for sells.
func (t *Transaction) SignedAmountBTC() decimal.Decimal {
	if t.Direction() == DirectionBuy {
		return t.AmountBTC
	}
	return t.AmountBTC.Neg()
}

// Validate checks invariants producers must hold before inserting.
func (t *Transaction) Validate() error {
	if t.WalletID == "" {
		return fmt.Errorf("wallet_id is required")
	}
	if !ValidTransactionType(t.Type) {
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	if t.AmountBTC.IsNegative() {
		return fmt.Errorf("amount_btc cannot be negative")
	}
	if t.TransactionDate.IsZero() {
		return fmt.Errorf("transaction_date is required")
	}
	return nil
}

// TransactionView is the per-day projection of a transaction returned inside
// portfolio history, with the derived direction made explicit.
type TransactionView struct {
	Type            TransactionType `json:"transaction_type"`
	Direction       Direction       `json:"direction"`
	AmountBTC       decimal.Decimal `json:"amount_btc"`
	PricePerBTCUSD  decimal.Decimal `json:"price_per_btc_usd"`
	Currency        string          `json:"currency"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// View projects a transaction for inclusion in portfolio history output.
func (t *Transaction) View() TransactionView {
	return TransactionView{
		Type:            t.Type,
		Direction:       t.Direction(),
		AmountBTC:       t.AmountBTC,
		PricePerBTCUSD:  t.PricePerBTCUSD,
		Currency:        t.Currency,
		TransactionDate: t.TransactionDate,
	}
}
