package crypto

// CryptoProvider is the narrow crypto interface used by consensus code.
// Implementations may add caching or instrumentation around the default
// Dilithium2 backend.
type CryptoProvider interface {
	SHA256(input []byte) [32]byte
	VerifyDilithium2(pubkey []byte, msg []byte, sig []byte) bool
}

// Verifier is the subset of CryptoProvider needed to authorize a spend.
type Verifier interface {
	VerifyDilithium2(pubkey []byte, msg []byte, sig []byte) bool
}
