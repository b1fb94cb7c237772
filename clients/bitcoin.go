package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/types"
)

var _ Client = (*BitcoinClient)(nil)

// BitcoinClient reads balances and transactions from a BlockCypher-compatible
// REST API. All amounts are reported in satoshis and normalized to BTC here.
type BitcoinClient struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	confirmations int64
}

// NewBitcoinClient creates a Bitcoin-family adapter for the given API
// endpoint, e.g. https://api.blockcypher.com/v1/btc/test3.
func NewBitcoinClient(cfg types.ClientConfig) (*BitcoinClient, error) {
	if cfg.APIUrl == "" {
		return nil, fmt.Errorf("bitcoin client requires an API URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	confirmations := cfg.Confirmations
	if confirmations <= 0 {
		confirmations = DefaultBitcoinConfirmations
	}

	return &BitcoinClient{
		baseURL:       cfg.APIUrl,
		token:         cfg.APIToken,
		httpClient:    &http.Client{Timeout: timeout},
		confirmations: confirmations,
	}, nil
}

type btcBalanceResponse struct {
	Balance            int64 `json:"balance"`
	UnconfirmedBalance int64 `json:"unconfirmed_balance"`
	FinalBalance       int64 `json:"final_balance"`
}

type btcTxResponse struct {
	Txs []struct {
		Hash          string    `json:"hash"`
		Total         int64     `json:"total"`
		Confirmations int64     `json:"confirmations"`
		Confirmed     time.Time `json:"confirmed"`
		Inputs        []struct {
			Addresses []string `json:"addresses"`
		} `json:"inputs"`
		Outputs []struct {
			Addresses []string `json:"addresses"`
		} `json:"outputs"`
	} `json:"txs"`
}

// GetBalance implements Client.
func (c *BitcoinClient) GetBalance(ctx context.Context, address string) (*types.Balance, error) {
	var resp btcBalanceResponse
	if err := c.get(ctx, fmt.Sprintf("/addrs/%s/balance", address), nil, &resp); err != nil {
		return nil, unavailable(types.ChainBitcoin, "balance fetch", err)
	}

	return &types.Balance{
		Confirmed:   satoshiToBTC(resp.Balance),
		Unconfirmed: satoshiToBTC(resp.UnconfirmedBalance),
		Total:       satoshiToBTC(resp.FinalBalance),
	}, nil
}

// GetTransactions implements Client.
func (c *BitcoinClient) GetTransactions(ctx context.Context, address string, limit int) ([]types.ObservedTransaction, error) {
	params := url.Values{"limit": {strconv.Itoa(limit)}}

	var resp btcTxResponse
	if err := c.get(ctx, fmt.Sprintf("/addrs/%s/full", address), params, &resp); err != nil {
		return nil, unavailable(types.ChainBitcoin, "transactions fetch", err)
	}

	txs := make([]types.ObservedTransaction, 0, len(resp.Txs))
	for _, tx := range resp.Txs {
		observed := types.ObservedTransaction{
			TxHash:        tx.Hash,
			Amount:        satoshiToBTC(tx.Total),
			Confirmations: tx.Confirmations,
			Timestamp:     tx.Confirmed,
		}
		if len(tx.Inputs) > 0 && len(tx.Inputs[0].Addresses) > 0 {
			observed.From = tx.Inputs[0].Addresses[0]
		}
		if len(tx.Outputs) > 0 && len(tx.Outputs[0].Addresses) > 0 {
			observed.To = tx.Outputs[0].Addresses[0]
		}
		txs = append(txs, observed)
	}

	return txs, nil
}

// Confirmations implements Client.
func (c *BitcoinClient) Confirmations() int64 {
	return c.confirmations
}

// Family implements Client.
func (c *BitcoinClient) Family() types.ChainFamily {
	return types.ChainBitcoin
}

// Close implements Client.
func (c *BitcoinClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *BitcoinClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}

	endpoint := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrHTTPRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w", ErrMalformedResponse, err)
	}

	return nil
}

func satoshiToBTC(sat int64) decimal.Decimal {
	return decimal.NewFromInt(sat).Shift(-8)
}
