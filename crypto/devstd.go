package crypto

// StdCryptoProvider is the default provider backed by crypto/sha256 and
// circl's Dilithium2 implementation.
type StdCryptoProvider struct{}

func (p StdCryptoProvider) SHA256(input []byte) [32]byte { return Hash(input) }

func (p StdCryptoProvider) VerifyDilithium2(pubkey []byte, msg []byte, sig []byte) bool {
	return Verify(pubkey, msg, sig)
}

var _ CryptoProvider = StdCryptoProvider{}
