package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/types"
)

// BlockCypherEvent is the push-notification payload BlockCypher POSTs for a
// confirmed Bitcoin transaction.
type BlockCypherEvent struct {
	Hash          string   `json:"hash"`
	Addresses     []string `json:"addresses"`
	Total         int64    `json:"total"`
	Confirmations int64    `json:"confirmations"`
}

// NormalizeBlockCypher turns a BlockCypher push payload into the same
// detected-transaction event shape the pollers emit, one event per address.
// PaymentID is left empty; the gateway resolves the open payment for each
// address before injecting the event.
func NormalizeBlockCypher(body []byte) ([]types.DetectedTransaction, error) {
	var evt BlockCypherEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("invalid blockcypher payload: %w", err)
	}

	if evt.Confirmations <= 0 {
		return nil, nil
	}

	amount := decimal.NewFromInt(evt.Total).Shift(-8)
	now := time.Now().UTC()

	events := make([]types.DetectedTransaction, 0, len(evt.Addresses))
	for _, addr := range evt.Addresses {
		events = append(events, types.DetectedTransaction{
			Currency: types.CurrencyBTC,
			Address:  addr,
			Tx: types.ObservedTransaction{
				TxHash:        evt.Hash,
				Amount:        amount,
				Confirmations: evt.Confirmations,
				Timestamp:     now,
				To:            addr,
			},
		})
	}

	return events, nil
}
