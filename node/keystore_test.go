package node

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"quantumcoin.dev/node/crypto"
)

func TestKeyStoreWriteRead(t *testing.T) {
	ks, err := NewKeyStore("qcd", bytes.NewReader(bytes.Repeat([]byte{7}, crypto.SeedSize)))
	require.NoError(t, err)
	require.Equal(t, keyStoreVersion, ks.Version)

	path := filepath.Join(t.TempDir(), "miner.key")
	require.NoError(t, WriteKeyStore(path, ks))
	got, err := ReadKeyStore(path)
	require.NoError(t, err)
	require.Equal(t, ks, got)

	pk, sk, err := got.Keypair()
	require.NoError(t, err)
	addr, err := crypto.AddressFromPubkey("qcd", pk)
	require.NoError(t, err)
	require.Equal(t, ks.Address, addr)

	sig, err := crypto.Sign(sk, []byte("msg"))
	require.NoError(t, err)
	require.True(t, crypto.Verify(pk, []byte("msg"), sig))
}

func TestKeyStoreDetectsTampering(t *testing.T) {
	ks, err := NewKeyStore("qcd", bytes.NewReader(bytes.Repeat([]byte{7}, crypto.SeedSize)))
	require.NoError(t, err)
	other, err := NewKeyStore("qcd", bytes.NewReader(bytes.Repeat([]byte{8}, crypto.SeedSize)))
	require.NoError(t, err)
	ks.PubkeyHex = other.PubkeyHex
	_, _, err = ks.Keypair()
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, WriteKeyStore(path, ks))
	_, err = ReadKeyStore(path)
	require.Error(t, err)

	ks.SeedHex = hex.EncodeToString([]byte{1, 2})
	_, _, err = ks.Keypair()
	require.Error(t, err)
}

func TestNewKeyStoreShortEntropy(t *testing.T) {
	_, err := NewKeyStore("qcd", bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}
