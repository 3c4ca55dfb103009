package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// requiredHeaders is the exact CoinMarketCap export header row. Anything
// else fails the whole import before a single row is parsed.
var requiredHeaders = []string{
	"Date (UTC-3:00)", "Token", "Type", "Price (USD)", "Amount",
	"Total value (USD)", "Fee", "Fee Currency", "Notes",
}

const importDateFormat = "2006-01-02 15:04:05"

// ImportService loads CoinMarketCap CSV exports into a wallet's ledger.
type ImportService struct {
	transactions repositories.TransactionRepository
	wallets      repositories.WalletRepository
	locker       WalletLocker
	publisher    EventPublisher
	lockTTL      time.Duration
	log          *logrus.Entry
}

// NewImportService creates a CSV import service.
func NewImportService(transactions repositories.TransactionRepository, wallets repositories.WalletRepository,
	locker WalletLocker, publisher EventPublisher, lockTTL time.Duration) *ImportService {
	return &ImportService{
		transactions: transactions,
		wallets:      wallets,
		locker:       locker,
		publisher:    publisher,
		lockTTL:      lockTTL,
		log:          logrus.WithField("component", "import_service"),
	}
}

// ImportResult reports what one import did.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportCSV parses the whole file first and only then writes, so a bad row
// anywhere means nothing was inserted.
func (s *ImportService) ImportCSV(ctx context.Context, userID, walletID string, r io.Reader) (*ImportResult, error) {
	txs, skipped, err := ParseCoinMarketCapCSV(r, walletID)
	if err != nil {
		return nil, err
	}

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
	if wallet.UserID != userID {
		return nil, repositories.ErrWalletNotFound
	}

	if len(txs) > 0 {
		if err := s.transactions.InsertMany(ctx, txs); err != nil {
			return nil, err
		}

		delta := decimal.Zero
		for i := range txs {
			delta = delta.Add(txs[i].SignedAmountBTC())
		}
		wallet.BTCHoldings = wallet.BTCHoldings.Add(delta)
		if err := s.wallets.Update(ctx, wallet); err != nil {
			return nil, err
		}

		for i := range txs {
			s.publisher.PublishTransaction(&txs[i])
		}
	}

	s.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"imported":  len(txs),
		"skipped":   skipped,
	}).Info("CSV import finished")

	return &ImportResult{Imported: len(txs), Skipped: skipped}, nil
}

// ParseCoinMarketCapCSV parses a CoinMarketCap export. Non-BTC rows are
// skipped and counted; any malformed row aborts the parse.
func ParseCoinMarketCapCSV(r io.Reader, walletID string) ([]models.Transaction, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimPrefix(strings.TrimSpace(headers[i]), "\ufeff")
	}
	if len(headers) != len(requiredHeaders) {
		return nil, 0, fmt.Errorf("CSV header mismatch: expected %d columns, got %d", len(requiredHeaders), len(headers))
	}
	for i, want := range requiredHeaders {
		if headers[i] != want {
			return nil, 0, fmt.Errorf("CSV header mismatch at column %d: expected %q, got %q", i+1, want, headers[i])
		}
	}

	var txs []models.Transaction
	skipped := 0
	line := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if len(row) != len(requiredHeaders) {
			return nil, 0, fmt.Errorf("row %d: expected %d columns, got %d", line, len(requiredHeaders), len(row))
		}

		token := strings.TrimSpace(row[1])
		if token != "BTC" {
			skipped++
			continue
		}

		date, err := time.ParseInLocation(importDateFormat, strings.TrimSpace(row[0]), time.UTC)
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: bad date %q", line, row[0])
		}

		var txType models.TransactionType
		switch strings.ToLower(strings.TrimSpace(row[2])) {
		case "buy":
			txType = models.TypeCMCBuy
		case "sell":
			txType = models.TypeCMCSell
		default:
			return nil, 0, fmt.Errorf("row %d: invalid type %q, expected buy or sell", line, row[2])
		}

		price, err := cleanNumeric(row[3])
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: bad price %q", line, row[3])
		}
		amount, err := cleanNumeric(row[4])
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: bad amount %q", line, row[4])
		}
		totalValue, err := cleanNumeric(row[5])
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: bad total value %q", line, row[5])
		}

		tx := models.Transaction{
			WalletID:        walletID,
			Type:            txType,
			AmountBTC:       amount,
			PricePerBTCUSD:  price,
			TotalValueUSD:   totalValue,
			Currency:        "USD",
			TransactionDate: date,
			Notes:           strings.TrimSpace(row[8]),
			Origin:          models.OriginManual,
		}

		if fee, err := cleanNumeric(row[6]); err == nil {
			tx.Fee = &fee
			if fc := strings.TrimSpace(row[7]); fc != "" && fc != "--" {
				tx.FeeCurrency = fc
			}
		}

		txs = append(txs, tx)
	}

	return txs, skipped, nil
}

// cleanNumeric parses CSV numbers that may carry thousands separators,
// spaces or the "--" empty marker.
func cleanNumeric(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" || cleaned == "--" {
		return decimal.Zero, fmt.Errorf("empty numeric value")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	return decimal.NewFromString(cleaned)
}
