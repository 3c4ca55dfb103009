package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"dcawallet-api/internal/clients/esplora"
	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

type MockAddressSource struct {
	mock.Mock
}

func (m *MockAddressSource) AddressTransactions(ctx context.Context, address string) ([]esplora.Tx, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]esplora.Tx), args.Error(1)
}

type MockHistoricalPricer struct {
	mock.Mock
}

func (m *MockHistoricalPricer) GetHistoricalPrice(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, date, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

const syncAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

func chainTx(txid string, incomingSats, blockTime int64) esplora.Tx {
	if incomingSats >= 0 {
		return esplora.Tx{
			TxID:   txid,
			Vout:   []esplora.Vout{{ScriptPubKeyAddress: syncAddress, Value: incomingSats}},
			Status: esplora.TxStatus{Confirmed: true, BlockTime: blockTime},
		}
	}
	return esplora.Tx{
		TxID:   txid,
		Vin:    []esplora.Vin{{Prevout: &esplora.Vout{ScriptPubKeyAddress: syncAddress, Value: -incomingSats}}},
		Vout:   []esplora.Vout{{ScriptPubKeyAddress: "other", Value: -incomingSats}},
		Status: esplora.TxStatus{Confirmed: true, BlockTime: blockTime},
	}
}

func newTestBlockchainService(wallets *MockWalletRepository, transactions *MockTransactionRepository,
	explorer *MockAddressSource, pricer *MockHistoricalPricer, publisher *capturingPublisher) *BlockchainService {
	return NewBlockchainService(wallets, transactions, explorer, pricer, noopLocker{}, publisher, 30*time.Second)
}

func TestCreateSyncedWallet_FoldsHistory(t *testing.T) {
	in := chainTx("tx-in", 100000000, 1718020800)   // +1 BTC
	out := chainTx("tx-out", -30000000, 1718107200) // -0.3 BTC
	unconfirmed := esplora.Tx{TxID: "tx-pending", Status: esplora.TxStatus{Confirmed: false}}

	wallets := new(MockWalletRepository)
	transactions := new(MockTransactionRepository)
	explorer := new(MockAddressSource)
	pricer := new(MockHistoricalPricer)
	publisher := &capturingPublisher{}

	wallets.On("GetByAddress", mock.Anything, syncAddress).Return(nil, repositories.ErrWalletNotFound)
	explorer.On("AddressTransactions", mock.Anything, syncAddress).Return([]esplora.Tx{in, out, unconfirmed}, nil)
	wallets.On("Create", mock.Anything, mock.Anything).Return(nil)
	transactions.On("ExistsByTxID", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	pricer.On("GetHistoricalPrice", mock.Anything, mock.Anything, "usd").Return(decimal.NewFromInt(60000), nil)
	transactions.On("Insert", mock.Anything, mock.Anything).Return(nil)

	s := newTestBlockchainService(wallets, transactions, explorer, pricer, publisher)

	wallet, err := s.CreateSyncedWallet(context.Background(), "u1", CreateSyncedWalletRequest{
		Label:         "cold storage",
		WalletAddress: syncAddress,
	})
	require.NoError(t, err)

	assert.True(t, wallet.IsBlockchainSynced)
	assert.True(t, wallet.BTCHoldings.Equal(decimal.RequireFromString("0.7")))
	// Unconfirmed transactions are not folded in.
	require.Len(t, wallet.SyncedTransactions, 2)
	assert.True(t, wallet.SyncedTransactions[0].IsIncoming)
	assert.False(t, wallet.SyncedTransactions[1].IsIncoming)

	// Two ledger rows mirrored, both with positive amounts.
	transactions.AssertNumberOfCalls(t, "Insert", 2)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, models.TypeBlockchainIn, publisher.published[0].Type)
	assert.True(t, publisher.published[0].AmountBTC.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, models.TypeBlockchainOut, publisher.published[1].Type)
	assert.True(t, publisher.published[1].AmountBTC.Equal(decimal.RequireFromString("0.3")))
}

func TestCreateSyncedWallet_DuplicateAddressRejected(t *testing.T) {
	existing := &models.Wallet{ID: primitive.NewObjectID(), UserID: "u1", WalletAddress: syncAddress}

	wallets := new(MockWalletRepository)
	wallets.On("GetByAddress", mock.Anything, syncAddress).Return(existing, nil)

	s := newTestBlockchainService(wallets, new(MockTransactionRepository),
		new(MockAddressSource), new(MockHistoricalPricer), &capturingPublisher{})

	_, err := s.CreateSyncedWallet(context.Background(), "u1", CreateSyncedWalletRequest{
		Label:         "dupe",
		WalletAddress: syncAddress,
	})
	assert.ErrorIs(t, err, ErrWalletAlreadySynced)
}

func TestCreateSyncedWallet_InvalidAddress(t *testing.T) {
	s := newTestBlockchainService(new(MockWalletRepository), new(MockTransactionRepository),
		new(MockAddressSource), new(MockHistoricalPricer), &capturingPublisher{})

	_, err := s.CreateSyncedWallet(context.Background(), "u1", CreateSyncedWalletRequest{
		Label:         "bad",
		WalletAddress: "nope",
	})
	assert.ErrorIs(t, err, esplora.ErrInvalidAddress)
}

func TestCreateSyncedWallet_MissingPriceKeepsRow(t *testing.T) {
	in := chainTx("tx-in", 100000000, 1718020800)

	wallets := new(MockWalletRepository)
	transactions := new(MockTransactionRepository)
	explorer := new(MockAddressSource)
	pricer := new(MockHistoricalPricer)
	publisher := &capturingPublisher{}

	wallets.On("GetByAddress", mock.Anything, syncAddress).Return(nil, repositories.ErrWalletNotFound)
	explorer.On("AddressTransactions", mock.Anything, syncAddress).Return([]esplora.Tx{in}, nil)
	wallets.On("Create", mock.Anything, mock.Anything).Return(nil)
	transactions.On("ExistsByTxID", mock.Anything, mock.Anything, "tx-in").Return(false, nil)
	pricer.On("GetHistoricalPrice", mock.Anything, mock.Anything, "usd").Return(decimal.Zero, errors.New("no data"))
	transactions.On("Insert", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.PricePerBTCUSD.IsZero() && tx.TotalValueUSD.IsZero()
	})).Return(nil)

	s := newTestBlockchainService(wallets, transactions, explorer, pricer, publisher)

	_, err := s.CreateSyncedWallet(context.Background(), "u1", CreateSyncedWalletRequest{
		Label:         "cold storage",
		WalletAddress: syncAddress,
	})
	require.NoError(t, err)
	transactions.AssertExpectations(t)
}

func TestReloadSyncedWallet_SkipsKnownTxIDs(t *testing.T) {
	known := chainTx("tx-known", 100000000, 1718020800)
	fresh := chainTx("tx-fresh", 50000000, 1718107200)

	wallet := &models.Wallet{
		ID:                 primitive.NewObjectID(),
		UserID:             "u1",
		IsBlockchainSynced: true,
		WalletAddress:      syncAddress,
		BTCHoldings:        decimal.NewFromInt(1),
		CurrentBTCBalance:  decimal.NewFromInt(1),
		SyncedTransactions: []models.SyncedTransaction{{TxID: "tx-known", Amount: decimal.NewFromInt(1)}},
	}

	wallets := new(MockWalletRepository)
	transactions := new(MockTransactionRepository)
	explorer := new(MockAddressSource)
	pricer := new(MockHistoricalPricer)
	publisher := &capturingPublisher{}

	wallets.On("GetByID", mock.Anything, wallet.ID.Hex()).Return(wallet, nil)
	explorer.On("AddressTransactions", mock.Anything, syncAddress).Return([]esplora.Tx{known, fresh}, nil)
	wallets.On("Update", mock.Anything, wallet).Return(nil)
	transactions.On("ExistsByTxID", mock.Anything, wallet.ID.Hex(), "tx-fresh").Return(false, nil)
	pricer.On("GetHistoricalPrice", mock.Anything, mock.Anything, "usd").Return(decimal.NewFromInt(60000), nil)
	transactions.On("Insert", mock.Anything, mock.Anything).Return(nil)

	s := newTestBlockchainService(wallets, transactions, explorer, pricer, publisher)

	updated, err := s.ReloadSyncedWallet(context.Background(), "u1", wallet.ID.Hex())
	require.NoError(t, err)

	assert.True(t, updated.BTCHoldings.Equal(decimal.RequireFromString("1.5")))
	assert.Len(t, updated.SyncedTransactions, 2)
	transactions.AssertNumberOfCalls(t, "Insert", 1)
}

func TestReloadSyncedWallet_PlainWalletRejected(t *testing.T) {
	wallet := &models.Wallet{ID: primitive.NewObjectID(), UserID: "u1", IsBlockchainSynced: false}

	wallets := new(MockWalletRepository)
	wallets.On("GetByID", mock.Anything, wallet.ID.Hex()).Return(wallet, nil)

	s := newTestBlockchainService(wallets, new(MockTransactionRepository),
		new(MockAddressSource), new(MockHistoricalPricer), &capturingPublisher{})

	_, err := s.ReloadSyncedWallet(context.Background(), "u1", wallet.ID.Hex())
	assert.ErrorIs(t, err, repositories.ErrWalletNotFound)
}

func TestReloadSyncedWallet_NoNewTransactionsIsNoOp(t *testing.T) {
	known := chainTx("tx-known", 100000000, 1718020800)

	wallet := &models.Wallet{
		ID:                 primitive.NewObjectID(),
		UserID:             "u1",
		IsBlockchainSynced: true,
		WalletAddress:      syncAddress,
		BTCHoldings:        decimal.NewFromInt(1),
		SyncedTransactions: []models.SyncedTransaction{{TxID: "tx-known", Amount: decimal.NewFromInt(1)}},
	}

	wallets := new(MockWalletRepository)
	explorer := new(MockAddressSource)

	wallets.On("GetByID", mock.Anything, wallet.ID.Hex()).Return(wallet, nil)
	explorer.On("AddressTransactions", mock.Anything, syncAddress).Return([]esplora.Tx{known}, nil)

	s := newTestBlockchainService(wallets, new(MockTransactionRepository),
		explorer, new(MockHistoricalPricer), &capturingPublisher{})

	updated, err := s.ReloadSyncedWallet(context.Background(), "u1", wallet.ID.Hex())
	require.NoError(t, err)

	assert.True(t, updated.BTCHoldings.Equal(decimal.NewFromInt(1)))
	wallets.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
