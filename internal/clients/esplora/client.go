package esplora

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/config"
)

// ErrUnavailable wraps explorer failures other than an unknown address.
var ErrUnavailable = errors.New("esplora unavailable")

// ErrInvalidAddress is returned before any network call when the address
// does not look like a Bitcoin address.
var ErrInvalidAddress = errors.New("invalid bitcoin address")

// Accepts legacy (1..., 3...) and bech32 (bc1...) mainnet addresses.
var addressPattern = regexp.MustCompile(`^(1[a-km-zA-HJ-NP-Z1-9]{25,34}|3[a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{39,59})$`)

// ValidAddress reports whether s looks like a mainnet Bitcoin address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Client talks to an Esplora-compatible block explorer API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	log        *logrus.Entry
}

// NewClient creates a new Esplora client
func NewClient(cfg config.EsploraConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		log:        logrus.WithField("component", "esplora"),
	}
}

// Vin is a transaction input with its funding prevout.
type Vin struct {
	Prevout *Vout `json:"prevout"`
}

// Vout is a transaction output.
type Vout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// TxStatus carries confirmation state.
type TxStatus struct {
	Confirmed bool  `json:"confirmed"`
	BlockTime int64 `json:"block_time"`
}

// Tx is one on-chain transaction as reported by the explorer.
type Tx struct {
	TxID   string   `json:"txid"`
	Vin    []Vin    `json:"vin"`
	Vout   []Vout   `json:"vout"`
	Status TxStatus `json:"status"`
	Fee    int64    `json:"fee"`
}

// Time returns the confirmation time, or the zero time when unconfirmed.
func (t *Tx) Time() time.Time {
	if !t.Status.Confirmed || t.Status.BlockTime == 0 {
		return time.Time{}
	}
	return time.Unix(t.Status.BlockTime, 0).UTC()
}

// Incoming reports whether the transaction pays the address: any output to
// the address makes the whole transaction incoming.
func (t *Tx) Incoming(address string) bool {
	for _, out := range t.Vout {
		if out.ScriptPubKeyAddress == address {
			return true
		}
	}
	return false
}

// AmountFor returns the signed BTC delta the transaction applied to the
// address: the sum of outputs paying it when incoming, minus the sum of
// inputs spending from it otherwise.
func (t *Tx) AmountFor(address string) decimal.Decimal {
	var sats int64
	if t.Incoming(address) {
		for _, out := range t.Vout {
			if out.ScriptPubKeyAddress == address {
				sats += out.Value
			}
		}
	} else {
		for _, in := range t.Vin {
			if in.Prevout != nil && in.Prevout.ScriptPubKeyAddress == address {
				sats -= in.Prevout.Value
			}
		}
	}
	return BTCFromSats(sats)
}

// BTCFromSats converts a satoshi amount to BTC.
func BTCFromSats(sats int64) decimal.Decimal {
	return decimal.New(sats, -8)
}

// AddressTransactions returns the confirmed transaction history of an
// address. An address the explorer has never seen yields an empty slice,
// not an error.
func (c *Client) AddressTransactions(ctx context.Context, address string) ([]Tx, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	body, status, err := c.makeRequest(ctx, "/address/"+address+"/txs")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []Tx{}, nil
	}

	var txs []Tx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("%w: failed to parse transactions: %v", ErrUnavailable, err)
	}
	return txs, nil
}

func (c *Client) makeRequest(ctx context.Context, endpoint string) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Retrying Esplora request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}

		body, status, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return body, status, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
	}

	return nil, 0, lastErr
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dcawallet-api/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: network error: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	// 404 is a valid answer for fresh addresses; the caller decides.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return body, resp.StatusCode, nil
}
