package esplora

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcawallet-api/internal/config"
)

const testAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

func testClient(baseURL string) *Client {
	return NewClient(config.EsploraConfig{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		MaxRetries: 0,
	})
}

func TestValidAddress(t *testing.T) {
	valid := []string{
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy",
		testAddress,
	}
	for _, addr := range valid {
		assert.True(t, ValidAddress(addr), addr)
	}

	invalid := []string{
		"",
		"not-an-address",
		"0A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		"bc1short",
	}
	for _, addr := range invalid {
		assert.False(t, ValidAddress(addr), addr)
	}
}

func TestBTCFromSats(t *testing.T) {
	assert.True(t, BTCFromSats(100000000).Equal(decimal.NewFromInt(1)))
	assert.True(t, BTCFromSats(1).Equal(decimal.RequireFromString("0.00000001")))
	assert.True(t, BTCFromSats(-50000000).Equal(decimal.RequireFromString("-0.5")))
	assert.True(t, BTCFromSats(0).IsZero())
}

func TestTxClassification(t *testing.T) {
	other := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

	t.Run("incoming sums outputs to the address", func(t *testing.T) {
		tx := Tx{
			Vin: []Vin{{Prevout: &Vout{ScriptPubKeyAddress: other, Value: 200000000}}},
			Vout: []Vout{
				{ScriptPubKeyAddress: testAddress, Value: 50000000},
				{ScriptPubKeyAddress: testAddress, Value: 25000000},
				{ScriptPubKeyAddress: other, Value: 120000000},
			},
		}

		assert.True(t, tx.Incoming(testAddress))
		assert.True(t, tx.AmountFor(testAddress).Equal(decimal.RequireFromString("0.75")))
	})

	t.Run("outgoing sums inputs spent from the address", func(t *testing.T) {
		tx := Tx{
			Vin: []Vin{
				{Prevout: &Vout{ScriptPubKeyAddress: testAddress, Value: 100000000}},
				{Prevout: &Vout{ScriptPubKeyAddress: testAddress, Value: 30000000}},
			},
			Vout: []Vout{{ScriptPubKeyAddress: other, Value: 129000000}},
		}

		assert.False(t, tx.Incoming(testAddress))
		assert.True(t, tx.AmountFor(testAddress).Equal(decimal.RequireFromString("-1.3")))
	})

	t.Run("any output to the address makes it incoming", func(t *testing.T) {
		// Self-spend with change: one input from the address, change back.
		tx := Tx{
			Vin:  []Vin{{Prevout: &Vout{ScriptPubKeyAddress: testAddress, Value: 100000000}}},
			Vout: []Vout{{ScriptPubKeyAddress: testAddress, Value: 99000000}},
		}

		assert.True(t, tx.Incoming(testAddress))
		assert.True(t, tx.AmountFor(testAddress).Equal(decimal.RequireFromString("0.99")))
	})

	t.Run("missing prevout is ignored", func(t *testing.T) {
		tx := Tx{
			Vin:  []Vin{{Prevout: nil}},
			Vout: []Vout{{ScriptPubKeyAddress: other, Value: 1000}},
		}

		assert.True(t, tx.AmountFor(testAddress).IsZero())
	})
}

func TestTxTime(t *testing.T) {
	confirmed := Tx{Status: TxStatus{Confirmed: true, BlockTime: 1718020800}}
	assert.Equal(t, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), confirmed.Time())

	unconfirmed := Tx{Status: TxStatus{Confirmed: false}}
	assert.True(t, unconfirmed.Time().IsZero())
}

func TestAddressTransactions(t *testing.T) {
	t.Run("parses history", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/address/"+testAddress+"/txs", r.URL.Path)
			w.Write([]byte(`[
				{
					"txid": "abc123",
					"vin": [{"prevout": {"scriptpubkey_address": "other", "value": 200000000}}],
					"vout": [{"scriptpubkey_address": "` + testAddress + `", "value": 50000000}],
					"status": {"confirmed": true, "block_time": 1718020800},
					"fee": 1000
				}
			]`))
		}))
		defer server.Close()

		txs, err := testClient(server.URL).AddressTransactions(context.Background(), testAddress)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "abc123", txs[0].TxID)
		assert.True(t, txs[0].Status.Confirmed)
		assert.True(t, txs[0].AmountFor(testAddress).Equal(decimal.RequireFromString("0.5")))
	})

	t.Run("unknown address yields empty history", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		txs, err := testClient(server.URL).AddressTransactions(context.Background(), testAddress)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("server error surfaces ErrUnavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := testClient(server.URL).AddressTransactions(context.Background(), testAddress)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("malformed address rejected without a network call", func(t *testing.T) {
		_, err := testClient("http://127.0.0.1:1").AddressTransactions(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})
}
