package consensus

import (
	"encoding/hex"
	"fmt"

	"quantumcoin.dev/node/crypto"
)

// Hash32 is a SHA-256 digest as it appears on the wire.
type Hash32 [32]byte

var ZeroHash Hash32

func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

func (h Hash32) IsZero() bool { return h == ZeroHash }

func ParseHash32(s string) (Hash32, error) {
	var out Hash32
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("hash32: %w", err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("hash32: length %d, want 32", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func sha256Hash(b []byte) Hash32 {
	return Hash32(crypto.Hash(b))
}

func pairHash(left, right Hash32) Hash32 {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return sha256Hash(buf[:])
}
