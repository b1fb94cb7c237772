package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/types"
)

// ValidateAmount checks if an amount string is a valid positive decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

var (
	btcAddressRe    = regexp.MustCompile(`^(bc1|tb1|[mn2]|[13])[a-zA-HJ-NP-Z0-9]{24,62}$`)
	stacksAddressRe = regexp.MustCompile(`^S[TPM][A-Z0-9]{28,40}$`)
)

// ValidateAddressForCurrency validates the address shape for the currency's
// chain family. Shape checks only; ownership is not provable here.
func ValidateAddressForCurrency(address string, currency types.Currency) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch currency.Family() {
	case types.ChainEthereum:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid ethereum address: %s", address)
		}
	case types.ChainBitcoin:
		if !btcAddressRe.MatchString(address) {
			return fmt.Errorf("invalid bitcoin address: %s", address)
		}
	case types.ChainStacks:
		if !stacksAddressRe.MatchString(address) {
			return fmt.Errorf("invalid stacks address: %s", address)
		}
	default:
		return fmt.Errorf("unsupported currency: %s", currency)
	}

	return nil
}

// PaymentURI builds the wallet-app URI encoded into payment QR codes by the
// UI layer.
func PaymentURI(currency types.Currency, address, amount, memo string) string {
	switch currency {
	case types.CurrencyBTC, types.CurrencySBTC:
		return fmt.Sprintf("bitcoin:%s?amount=%s&label=%s", address, amount, url.QueryEscape(memo))
	case types.CurrencyETH, types.CurrencyUSDT:
		return fmt.Sprintf("ethereum:%s?value=%s", address, amount)
	case types.CurrencySTX:
		return fmt.Sprintf("stacks:%s?amount=%s&memo=%s", address, amount, url.QueryEscape(memo))
	default:
		return fmt.Sprintf("%s:%s?amount=%s", strings.ToLower(string(currency)), address, amount)
	}
}
