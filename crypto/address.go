package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const DefaultAddressPrefix = "qc"

// AddressFromPubkey renders bech32(prefix, RIPEMD-160(SHA-256(pubkey))).
func AddressFromPubkey(prefix string, pubkey []byte) (string, error) {
	h := Hash160(pubkey)
	return encodeAddress(prefix, h)
}

func encodeAddress(prefix string, h [20]byte) (string, error) {
	data, err := bech32.ConvertBits(h[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	s, err := bech32.Encode(prefix, data)
	if err != nil {
		return "", fmt.Errorf("address: encode: %w", err)
	}
	return s, nil
}

// DecodeAddress returns the 20-byte pubkey hash carried by addr. The
// human-readable part must equal prefix.
func DecodeAddress(prefix string, addr string) ([20]byte, error) {
	var out [20]byte
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("address: %w", err)
	}
	if hrp != prefix {
		return out, fmt.Errorf("address: prefix %q, want %q", hrp, prefix)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return out, fmt.Errorf("address: convert bits: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("address: payload length %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
