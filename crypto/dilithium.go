package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
)

const (
	PublicKeySize = mode2.PublicKeySize  // 1312
	SecretKeySize = mode2.PrivateKeySize // 2528
	SignatureSize = mode2.SignatureSize  // 2420
	SeedSize      = mode2.SeedSize
)

type PublicKey []byte

type SecretKey []byte

// GenerateKeypair draws a fresh Dilithium2 keypair from crypto/rand.
func GenerateKeypair() (PublicKey, SecretKey, error) {
	return GenerateKeypairFrom(rand.Reader)
}

func GenerateKeypairFrom(r io.Reader) (PublicKey, SecretKey, error) {
	pk, sk, err := mode2.GenerateKey(r)
	if err != nil {
		return nil, nil, fmt.Errorf("dilithium2: keygen: %w", err)
	}
	return PublicKey(pk.Bytes()), SecretKey(sk.Bytes()), nil
}

// KeypairFromSeed derives a keypair deterministically. Tests and devnet
// genesis tooling use it; wallets should call GenerateKeypair.
func KeypairFromSeed(seed [SeedSize]byte) (PublicKey, SecretKey) {
	pk, sk := mode2.NewKeyFromSeed(&seed)
	return PublicKey(pk.Bytes()), SecretKey(sk.Bytes())
}

// Sign produces a detached signature over msg.
func Sign(sk SecretKey, msg []byte) ([]byte, error) {
	if len(sk) != SecretKeySize {
		return nil, fmt.Errorf("dilithium2: secret key length %d, want %d", len(sk), SecretKeySize)
	}
	var buf [SecretKeySize]byte
	copy(buf[:], sk)
	var key mode2.PrivateKey
	key.Unpack(&buf)
	sig := make([]byte, SignatureSize)
	mode2.SignTo(&key, msg, sig)
	return sig, nil
}

// Verify reports whether sig is a valid signature of msg under pubkey.
// Malformed keys or signatures yield false, never a panic.
func Verify(pubkey []byte, msg []byte, sig []byte) bool {
	if len(pubkey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	var buf [PublicKeySize]byte
	copy(buf[:], pubkey)
	var key mode2.PublicKey
	key.Unpack(&buf)
	return mode2.Verify(&key, msg, sig)
}
