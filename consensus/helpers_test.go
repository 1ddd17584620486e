package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quantumcoin.dev/node/crypto"
)

type testKey struct {
	pk crypto.PublicKey
	sk crypto.SecretKey
}

var keyCache = map[byte]testKey{}

func newTestKey(b byte) testKey {
	if k, ok := keyCache[b]; ok {
		return k
	}
	var seed [crypto.SeedSize]byte
	for i := range seed {
		seed[i] = b
	}
	pk, sk := crypto.KeypairFromSeed(seed)
	k := testKey{pk: pk, sk: sk}
	keyCache[b] = k
	return k
}

func testSpec() *ChainSpec {
	s := DevnetChainSpec()
	s.TxPolicy.CoinbaseMaturity = 3
	return s
}

func coinbaseTx(height uint64, value int64, pk []byte) Tx {
	return Tx{
		Version:  1,
		Outputs:  []TxOut{{Value: value, Type: P2PQ(pk)}},
		LockTime: uint32(height),
	}
}

func spendTx(prev OutPoint, outs ...TxOut) Tx {
	return Tx{
		Version: 1,
		Inputs:  []TxIn{{Prevout: prev}},
		Outputs: outs,
	}
}

// signTx signs every input with the matching key; a single key signs all.
func signTx(t *testing.T, tx *Tx, keys ...testKey) {
	t.Helper()
	sighash := Sighash(tx)
	for i := range tx.Inputs {
		k := keys[0]
		if i < len(keys) {
			k = keys[i]
		}
		sig, err := crypto.Sign(k.sk, sighash[:])
		require.NoError(t, err)
		tx.Inputs[i].Signature = sig
	}
}

func mineBlock(t *testing.T, prev Hash32, bits uint32, tm uint64, txs []Tx) *Block {
	t.Helper()
	blk := &Block{
		Header: BlockHeader{
			Version:    1,
			PrevBlock:  prev,
			MerkleRoot: MerkleRoot(txs),
			Time:       tm,
			Bits:       bits,
		},
		Txs: txs,
	}
	target := BitsToTarget(bits)
	for !CheckProofOfWork(BlockHash(blk.Header), target) {
		blk.Header.Nonce++
		require.NotZero(t, blk.Header.Nonce, "nonce space exhausted")
	}
	return blk
}

// nextBlock mines a block on top of st paying the full subsidy plus fees
// to miner.
func nextBlock(t *testing.T, st *InMemoryChainState, miner testKey, fees int64, txs ...Tx) *Block {
	t.Helper()
	ctx, err := st.NextContext()
	require.NoError(t, err)
	tm := st.Spec.Consensus.GenesisTime + ctx.Height*st.Spec.Consensus.TargetBlockTimeSecs
	value := BlockSubsidy(st.Spec, ctx.Height) + fees
	all := append([]Tx{coinbaseTx(ctx.Height, value, miner.pk)}, txs...)
	return mineBlock(t, ctx.PrevHash, *ctx.ExpectedBits, tm, all)
}

func connectNext(t *testing.T, st *InMemoryChainState, miner testKey, fees int64, txs ...Tx) *Block {
	t.Helper()
	blk := nextBlock(t, st, miner, fees, txs...)
	_, err := st.ConnectBlock(blk)
	require.NoError(t, err)
	return blk
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "err=%v", err)
}
