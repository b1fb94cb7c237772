package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/types"
)

var _ Client = (*EthereumClient)(nil)

// EthereumClient reads balances and transactions from an Ethereum JSON-RPC
// node. Recent transfers are found by scanning the newest blocks for
// native-value transactions to the address; amounts are normalized from wei.
type EthereumClient struct {
	rpcURL        string
	client        *ethclient.Client
	confirmations int64
	blockWindow   uint64

	mu      sync.Mutex
	chainID *big.Int
}

// NewEthereumClient creates an Ethereum-family adapter.
func NewEthereumClient(cfg types.ClientConfig) (*EthereumClient, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("ethereum client requires an RPC URL")
	}

	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	confirmations := cfg.Confirmations
	if confirmations <= 0 {
		confirmations = DefaultEthereumConfirmations
	}

	blockWindow := cfg.BlockWindow
	if blockWindow == 0 {
		blockWindow = 40
	}

	return &EthereumClient{
		rpcURL:        cfg.RPCUrl,
		client:        client,
		confirmations: confirmations,
		blockWindow:   blockWindow,
	}, nil
}

// GetBalance implements Client.
func (c *EthereumClient) GetBalance(ctx context.Context, address string) (*types.Balance, error) {
	if !common.IsHexAddress(address) {
		return nil, unavailable(types.ChainEthereum, "balance fetch", fmt.Errorf("%s: %s", ErrInvalidAddress, address))
	}

	wei, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, unavailable(types.ChainEthereum, "balance fetch", err)
	}

	eth := weiToETH(wei)
	return &types.Balance{
		Confirmed:   eth,
		Unconfirmed: decimal.Zero,
		Total:       eth,
	}, nil
}

// GetTransactions implements Client. It walks backwards from the chain head
// over the configured block window and collects native transfers into the
// address. Confirmations = head - txBlock + 1.
func (c *EthereumClient) GetTransactions(ctx context.Context, address string, limit int) ([]types.ObservedTransaction, error) {
	if !common.IsHexAddress(address) {
		return nil, unavailable(types.ChainEthereum, "transactions fetch", fmt.Errorf("%s: %s", ErrInvalidAddress, address))
	}
	target := common.HexToAddress(address)

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, unavailable(types.ChainEthereum, "transactions fetch", err)
	}
	headNum := head.Number.Uint64()

	signer, err := c.signer(ctx)
	if err != nil {
		return nil, unavailable(types.ChainEthereum, "transactions fetch", err)
	}

	var txs []types.ObservedTransaction
	for n := headNum; n > 0 && headNum-n < c.blockWindow && len(txs) < limit; n-- {
		block, err := c.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, unavailable(types.ChainEthereum, "transactions fetch", err)
		}

		for _, tx := range block.Transactions() {
			if tx.To() == nil || *tx.To() != target {
				continue
			}

			observed := types.ObservedTransaction{
				TxHash:        tx.Hash().Hex(),
				Amount:        weiToETH(tx.Value()),
				Confirmations: int64(headNum-n) + 1,
				Timestamp:     time.Unix(int64(block.Time()), 0).UTC(),
				To:            target.Hex(),
			}
			if from, err := ethtypes.Sender(signer, tx); err == nil {
				observed.From = from.Hex()
			}

			txs = append(txs, observed)
			if len(txs) >= limit {
				break
			}
		}
	}

	return txs, nil
}

// Confirmations implements Client.
func (c *EthereumClient) Confirmations() int64 {
	return c.confirmations
}

// Family implements Client.
func (c *EthereumClient) Family() types.ChainFamily {
	return types.ChainEthereum
}

// Close implements Client.
func (c *EthereumClient) Close() {
	c.client.Close()
}

// signer returns the chain's transaction signer, fetching and caching the
// chain ID on first use.
func (c *EthereumClient) signer(ctx context.Context) (ethtypes.Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID == nil {
		chainID, err := c.client.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		c.chainID = chainID
	}

	return ethtypes.LatestSignerForChainID(c.chainID), nil
}

func weiToETH(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}
