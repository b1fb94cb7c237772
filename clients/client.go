// Package clients provides one chain adapter per blockchain family. Each
// adapter normalizes chain-native amounts to decimal units and reports a
// confirmation count, behind a uniform read-only interface.
package clients

import (
	"context"
	"fmt"

	"github.com/vitwit/paygate/types"
)

// Client is the capability set a chain adapter must provide. Adapters only
// observe chains; they never sign, hold keys, or broadcast.
type Client interface {
	// GetBalance returns the address balance in chain-native decimal units.
	GetBalance(ctx context.Context, address string) (*types.Balance, error)

	// GetTransactions returns the most recent transfers touching the
	// address, newest first, normalized to chain-native decimal units.
	GetTransactions(ctx context.Context, address string, limit int) ([]types.ObservedTransaction, error)

	// Confirmations is the chain's fixed confirmation threshold. A
	// transfer below it is not treated as final.
	Confirmations() int64

	// Family identifies which chain family this adapter serves.
	Family() types.ChainFamily

	Close()
}

// Default confirmation thresholds per chain family. Ethereum's faster block
// time warrants a higher count before a transfer is treated as final.
const (
	DefaultBitcoinConfirmations  int64 = 1
	DefaultEthereumConfirmations int64 = 12
	DefaultStacksConfirmations   int64 = 1
)

// unavailable wraps a transient fetch failure as AdapterUnavailable so the
// monitor can log and skip the tick without deregistering the watch.
func unavailable(family types.ChainFamily, op string, err error) error {
	return &types.GatewayError{
		Code:    types.ErrAdapterUnavailable,
		Message: fmt.Sprintf("%s %s failed: %v", family, op, err),
	}
}
