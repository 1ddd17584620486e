package node

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"quantumcoin.dev/node/crypto"
)

const keyStoreVersion = "QCKSv1"

var ksJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// KeyStoreV1 is the on-disk form of a Dilithium2 key. The secret key is
// derived from SeedHex, so the file must be kept private (it is written
// 0600).
type KeyStoreV1 struct {
	Version   string `json:"version"`
	PubkeyHex string `json:"pubkey_hex"`
	Address   string `json:"address"`
	SeedHex   string `json:"seed_hex"`
}

// NewKeyStore draws a fresh seed from r (crypto/rand when nil).
func NewKeyStore(prefix string, r io.Reader) (*KeyStoreV1, error) {
	if r == nil {
		r = rand.Reader
	}
	var seed [crypto.SeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return nil, errors.Wrap(err, "read seed")
	}
	pk, _ := crypto.KeypairFromSeed(seed)
	addr, err := crypto.AddressFromPubkey(prefix, pk)
	if err != nil {
		return nil, err
	}
	return &KeyStoreV1{
		Version:   keyStoreVersion,
		PubkeyHex: hex.EncodeToString(pk),
		Address:   addr,
		SeedHex:   hex.EncodeToString(seed[:]),
	}, nil
}

// Keypair rebuilds the key pair and checks it against the stored pubkey.
func (ks *KeyStoreV1) Keypair() (crypto.PublicKey, crypto.SecretKey, error) {
	raw, err := hex.DecodeString(ks.SeedHex)
	if err != nil || len(raw) != crypto.SeedSize {
		return nil, nil, errors.New("keystore: bad seed_hex")
	}
	var seed [crypto.SeedSize]byte
	copy(seed[:], raw)
	pk, sk := crypto.KeypairFromSeed(seed)
	want, err := hex.DecodeString(ks.PubkeyHex)
	if err != nil || !bytes.Equal(want, pk) {
		return nil, nil, errors.New("keystore: pubkey does not match seed")
	}
	return pk, sk, nil
}

func WriteKeyStore(path string, ks *KeyStoreV1) error {
	b, err := ksJSON.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return writeFileAtomic(path, b, 0o600)
}

func ReadKeyStore(path string) (*KeyStoreV1, error) {
	raw, err := readFileByPath(path)
	if err != nil {
		return nil, err
	}
	var ks KeyStoreV1
	if err := ksJSON.Unmarshal(raw, &ks); err != nil {
		return nil, errors.Wrap(err, "decode keystore")
	}
	if ks.Version != keyStoreVersion {
		return nil, errors.Errorf("unsupported keystore version: %q", ks.Version)
	}
	if _, _, err := ks.Keypair(); err != nil {
		return nil, err
	}
	return &ks, nil
}
