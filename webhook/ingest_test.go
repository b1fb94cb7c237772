package webhook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/paygate/types"
)

func TestNormalizeBlockCypher(t *testing.T) {
	body := []byte(`{
		"hash": "f854aebae95150b379cc1187d848d58225f3c4157fe992bcd166f58bd5063449",
		"addresses": ["mrf6kej7STVX1HLNxGJ1fiUbwNHxZvoDfN", "n2vgDNzVYizsvkBDLaGiULLydM7k14TJri"],
		"total": 150000,
		"confirmations": 2
	}`)

	events, err := NormalizeBlockCypher(body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	for i, addr := range []string{"mrf6kej7STVX1HLNxGJ1fiUbwNHxZvoDfN", "n2vgDNzVYizsvkBDLaGiULLydM7k14TJri"} {
		evt := events[i]
		assert.Empty(t, evt.PaymentID, "resolution happens downstream")
		assert.Equal(t, types.CurrencyBTC, evt.Currency)
		assert.Equal(t, addr, evt.Address)
		assert.Equal(t, addr, evt.Tx.To)
		assert.Equal(t, "f854aebae95150b379cc1187d848d58225f3c4157fe992bcd166f58bd5063449", evt.Tx.TxHash)
		assert.True(t, evt.Tx.Amount.Equal(decimal.RequireFromString("0.0015")), "satoshi total converts to BTC")
		assert.Equal(t, int64(2), evt.Tx.Confirmations)
	}
}

func TestNormalizeBlockCypherUnconfirmed(t *testing.T) {
	body := []byte(`{"hash": "abc", "addresses": ["x"], "total": 100, "confirmations": 0}`)

	events, err := NormalizeBlockCypher(body)
	require.NoError(t, err)
	assert.Nil(t, events, "mempool notifications are ignored")
}

func TestNormalizeBlockCypherMalformed(t *testing.T) {
	_, err := NormalizeBlockCypher([]byte(`not json`))
	require.Error(t, err)
}
