// Package wallet provisions receiving addresses for (user, currency) pairs.
// The monitoring core never signs or spends; it only needs an address to
// watch, so key custody beyond generation is an external concern.
package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/vitwit/paygate/types"
	"golang.org/x/crypto/ripemd160"
)

// Provider resolves the receiving address for a (user, currency) pair,
// reusing an existing address if one is already associated and allocating a
// new one otherwise.
type Provider interface {
	GetOrCreate(userID string, currency types.Currency) (string, error)
}

// KeyProvider generates fresh secp256k1 keypairs and derives chain-family
// addresses from them, keeping one address per (user, currency).
type KeyProvider struct {
	mu        sync.Mutex
	addresses map[string]string
	// mainnet selects the Bitcoin P2PKH version byte.
	mainnet bool
}

// NewKeyProvider creates a provider. mainnet controls Bitcoin address
// versioning; Ethereum and Stacks addresses are network-agnostic here.
func NewKeyProvider(mainnet bool) *KeyProvider {
	return &KeyProvider{
		addresses: make(map[string]string),
		mainnet:   mainnet,
	}
}

// GetOrCreate implements Provider.
func (p *KeyProvider) GetOrCreate(userID string, currency types.Currency) (string, error) {
	key := userID + ":" + string(currency)

	p.mu.Lock()
	defer p.mu.Unlock()

	if addr, ok := p.addresses[key]; ok {
		return addr, nil
	}

	addr, err := p.generate(currency)
	if err != nil {
		return "", err
	}

	p.addresses[key] = addr
	return addr, nil
}

func (p *KeyProvider) generate(currency types.Currency) (string, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("%s address generation failed: %w", currency, err)
	}

	switch currency.Family() {
	case types.ChainEthereum:
		return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
	case types.ChainBitcoin:
		return p.bitcoinAddress(crypto.CompressPubkey(&priv.PublicKey)), nil
	case types.ChainStacks:
		return stacksAddress(crypto.CompressPubkey(&priv.PublicKey)), nil
	default:
		return "", &types.GatewayError{
			Code:    types.ErrUnsupportedCurrency,
			Message: fmt.Sprintf("cannot allocate address for %s", currency),
		}
	}
}

// bitcoinAddress derives a base58check P2PKH address from a compressed
// public key.
func (p *KeyProvider) bitcoinAddress(pubkey []byte) string {
	version := byte(0x6f) // testnet
	if p.mainnet {
		version = 0x00
	}

	payload := append([]byte{version}, hash160(pubkey)...)
	check := doubleSHA256(payload)[:4]
	return base58.Encode(append(payload, check...))
}

// stacksAddress derives an ST-prefixed address from the public key hash. The
// upstream allocator uses the same shape; full c32check encoding is left to
// the wallet collaborator.
func stacksAddress(pubkey []byte) string {
	h := strings.ToUpper(hex.EncodeToString(hash160(pubkey)))
	return "ST" + h
}

func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
