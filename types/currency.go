package types

// Currency represents a supported cryptocurrency.
type Currency string

const (
	CurrencyBTC  Currency = "BTC"
	CurrencyETH  Currency = "ETH"
	CurrencyUSDT Currency = "USDT"
	CurrencySTX  Currency = "STX"
	CurrencySBTC Currency = "sBTC"
)

// ChainFamily classifies a currency into a blockchain family. Each family has
// its own adapter, its own confirmation semantics, and its own base unit.
type ChainFamily string

const (
	ChainBitcoin  ChainFamily = "bitcoin"
	ChainEthereum ChainFamily = "ethereum"
	ChainStacks   ChainFamily = "stacks"
)

// SupportedCurrencies lists every currency the core accepts, with its
// display name.
var SupportedCurrencies = map[Currency]string{
	CurrencyBTC:  "Bitcoin",
	CurrencyETH:  "Ethereum",
	CurrencyUSDT: "Tether USD",
	CurrencySTX:  "Stacks",
	CurrencySBTC: "Stacks Bitcoin",
}

// IsSupported reports whether the currency is in the supported set.
func (c Currency) IsSupported() bool {
	_, ok := SupportedCurrencies[c]
	return ok
}

// Helper functions for chain family classification
func (c Currency) IsBitcoin() bool {
	return c == CurrencyBTC
}

func (c Currency) IsEthereum() bool {
	return c == CurrencyETH || c == CurrencyUSDT
}

func (c Currency) IsStacks() bool {
	return c == CurrencySTX || c == CurrencySBTC
}

// Family returns the chain family the currency settles on.
func (c Currency) Family() ChainFamily {
	switch {
	case c.IsBitcoin():
		return ChainBitcoin
	case c.IsEthereum():
		return ChainEthereum
	case c.IsStacks():
		return ChainStacks
	default:
		return ""
	}
}

// Decimals returns how many fractional digits the chain's base unit carries
// (satoshis for Bitcoin, wei for Ethereum, microstacks for Stacks).
func (c Currency) Decimals() int32 {
	switch c.Family() {
	case ChainBitcoin:
		return 8
	case ChainEthereum:
		return 18
	case ChainStacks:
		return 6
	default:
		return 0
	}
}

func (c Currency) String() string {
	return string(c)
}
