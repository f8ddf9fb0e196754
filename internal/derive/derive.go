// Package derive re-encodes one Cosmos-SDK account address for every chain
// that shares the Cosmos Hub key derivation.
package derive

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	apperrors "github.com/wallet-aggregator/internal/errors"
)

// Target is a chain the base address should be derived for
type Target struct {
	Symbol string
	Prefix string
	// Derivable is false for chains whose accounts come from a different
	// key path; they are only reachable through an override.
	Derivable bool
}

// Payload decodes a bech32 address and returns its prefix and raw key bytes
func Payload(address string) (string, []byte, error) {
	hrp, data, err := bech32.Decode(address)
	if err != nil {
		return "", nil, apperrors.NewInvalidAddressFormatError(address, err)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, apperrors.NewInvalidAddressFormatError(address, err)
	}
	if len(payload) == 0 {
		return "", nil, apperrors.NewInvalidAddressFormatError(address, fmt.Errorf("empty payload"))
	}
	return hrp, payload, nil
}

// Encode encodes payload with prefix
func Encode(prefix string, payload []byte) (string, error) {
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, data)
}

// Derive returns one address per target symbol.
// Overrides win over derivation and may name symbols outside targets.
// Non-derivable targets without an override are left out.
func Derive(base string, targets []Target, overrides map[string]string) (map[string]string, error) {
	_, payload, err := Payload(base)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(targets)+len(overrides))
	for _, t := range targets {
		if !t.Derivable {
			continue
		}
		addr, err := Encode(t.Prefix, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s address: %w", t.Symbol, err)
		}
		out[t.Symbol] = addr
	}
	for symbol, addr := range overrides {
		out[symbol] = addr
	}
	return out, nil
}
