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

var _ Client = (*StacksClient)(nil)

// StacksClient reads balances and transactions from a Hiro-compatible Stacks
// API. STX amounts arrive in microstacks and are normalized here.
type StacksClient struct {
	baseURL       string
	httpClient    *http.Client
	confirmations int64
}

// NewStacksClient creates a Stacks-family adapter for the given API endpoint,
// e.g. https://api.testnet.hiro.so.
func NewStacksClient(cfg types.ClientConfig) (*StacksClient, error) {
	if cfg.APIUrl == "" {
		return nil, fmt.Errorf("stacks client requires an API URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	confirmations := cfg.Confirmations
	if confirmations <= 0 {
		confirmations = DefaultStacksConfirmations
	}

	return &StacksClient{
		baseURL:       cfg.APIUrl,
		httpClient:    &http.Client{Timeout: timeout},
		confirmations: confirmations,
	}, nil
}

type stacksBalanceResponse struct {
	STX struct {
		Balance string `json:"balance"`
		Locked  string `json:"locked"`
	} `json:"stx"`
}

type stacksInfoResponse struct {
	StacksTipHeight int64 `json:"stacks_tip_height"`
}

type stacksTxResponse struct {
	Results []struct {
		TxID          string `json:"tx_id"`
		TxStatus      string `json:"tx_status"`
		BlockHeight   int64  `json:"block_height"`
		BurnBlockTime int64  `json:"burn_block_time"`
		SenderAddress string `json:"sender_address"`
		TokenTransfer struct {
			Amount           string `json:"amount"`
			RecipientAddress string `json:"recipient_address"`
		} `json:"token_transfer"`
	} `json:"results"`
}

// GetBalance implements Client.
func (c *StacksClient) GetBalance(ctx context.Context, address string) (*types.Balance, error) {
	var resp stacksBalanceResponse
	if err := c.get(ctx, fmt.Sprintf("/extended/v1/address/%s/balances", address), nil, &resp); err != nil {
		return nil, unavailable(types.ChainStacks, "balance fetch", err)
	}

	balance, err := microToSTX(resp.STX.Balance)
	if err != nil {
		return nil, unavailable(types.ChainStacks, "balance fetch", err)
	}

	return &types.Balance{
		Confirmed:   balance,
		Unconfirmed: decimal.Zero,
		Total:       balance,
	}, nil
}

// GetTransactions implements Client. Confirmations are derived from the
// current chain tip height.
func (c *StacksClient) GetTransactions(ctx context.Context, address string, limit int) ([]types.ObservedTransaction, error) {
	var info stacksInfoResponse
	if err := c.get(ctx, "/v2/info", nil, &info); err != nil {
		return nil, unavailable(types.ChainStacks, "transactions fetch", err)
	}

	params := url.Values{"limit": {strconv.Itoa(limit)}}
	var resp stacksTxResponse
	if err := c.get(ctx, fmt.Sprintf("/extended/v1/address/%s/transactions", address), params, &resp); err != nil {
		return nil, unavailable(types.ChainStacks, "transactions fetch", err)
	}

	txs := make([]types.ObservedTransaction, 0, len(resp.Results))
	for _, tx := range resp.Results {
		if tx.TxStatus != "success" || tx.TokenTransfer.Amount == "" {
			continue
		}

		amount, err := microToSTX(tx.TokenTransfer.Amount)
		if err != nil {
			continue
		}

		var confirmations int64
		if tx.BlockHeight > 0 && info.StacksTipHeight >= tx.BlockHeight {
			confirmations = info.StacksTipHeight - tx.BlockHeight + 1
		}

		txs = append(txs, types.ObservedTransaction{
			TxHash:        tx.TxID,
			Amount:        amount,
			Confirmations: confirmations,
			Timestamp:     time.Unix(tx.BurnBlockTime, 0).UTC(),
			From:          tx.SenderAddress,
			To:            tx.TokenTransfer.RecipientAddress,
		})
	}

	return txs, nil
}

// Confirmations implements Client.
func (c *StacksClient) Confirmations() int64 {
	return c.confirmations
}

// Family implements Client.
func (c *StacksClient) Family() types.ChainFamily {
	return types.ChainStacks
}

// Close implements Client.
func (c *StacksClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *StacksClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if params != nil {
		if encoded := params.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}
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

func microToSTX(micro string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(micro)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", ErrInvalidAmount, err)
	}
	return d.Shift(-6), nil
}
