package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address format is fixed to RIPEMD-160
)

// Hash returns SHA-256(b).
func Hash(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// DoubleHash returns SHA-256(SHA-256(b)). Block header hashes use it.
func DoubleHash(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// TxSighash is the digest signed by every input of a transaction. The
// payload is the canonical skeleton encoding (signatures emptied, cancel
// flags cleared).
func TxSighash(skeleton []byte) [32]byte {
	return Hash(skeleton)
}

// Hash160 returns RIPEMD-160(SHA-256(b)).
func Hash160(b []byte) [20]byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	_, _ = h.Write(sum[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
