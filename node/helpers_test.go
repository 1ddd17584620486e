package node

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
	"quantumcoin.dev/node/node/store"
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

func (k testKey) address(t *testing.T, spec *consensus.ChainSpec) string {
	t.Helper()
	addr, err := crypto.AddressFromPubkey(spec.Network.AddressPrefix, k.pk)
	require.NoError(t, err)
	return addr
}

func testSpec() *consensus.ChainSpec {
	s := consensus.DevnetChainSpec()
	s.TxPolicy.CoinbaseMaturity = 3
	return s
}

// a fixed clock a day after genesis keeps every header time in range
func testClock(spec *consensus.ChainSpec) func() uint64 {
	return func() uint64 { return spec.Consensus.GenesisTime + 86400 }
}

var backends = []string{store.BackendBolt, store.BackendLevelDB}

func openTestStore(t *testing.T, dir, backend string) store.Store {
	t.Helper()
	st, err := store.Open(store.Options{DataDir: dir, Network: "devnet", Backend: backend})
	require.NoError(t, err)
	return st
}

func newTestChain(t *testing.T, backend string, opts ...ChainStateOption) (*ChainState, store.Store) {
	t.Helper()
	spec := testSpec()
	st := openTestStore(t, t.TempDir(), backend)
	t.Cleanup(func() { _ = st.Close() })
	opts = append([]ChainStateOption{WithClock(testClock(spec))}, opts...)
	c, err := NewChainState(spec, st, opts...)
	require.NoError(t, err)
	return c, st
}

func minerConfig(k testKey) MinerConfig {
	return MinerConfig{
		Workers:        2,
		MaxTxPerBlock:  100,
		CoinbasePubkey: hex.EncodeToString(k.pk),
	}
}

func newTestMiner(t *testing.T, c *ChainState, pool *Mempool, k testKey) *Miner {
	t.Helper()
	m, err := NewMiner(c, pool, minerConfig(k), nil)
	require.NoError(t, err)
	return m
}

func newTestPool(spec *consensus.ChainSpec) *Mempool {
	return NewMempool(spec, DefaultConfig().Mempool, nil, nil)
}

// assembleBlock builds and mines the next block with the given non-coinbase
// transactions, paying subsidy plus fees to miner.
func assembleBlock(t *testing.T, c *ChainState, miner testKey, fees int64, txs ...consensus.Tx) (uint64, *consensus.Block) {
	t.Helper()
	var height uint64
	var blk *consensus.Block
	err := c.View(func(ctx consensus.BlockContext, _ consensus.UtxoLookup) error {
		reward, err := consensus.MaxCoinbaseValue(c.Spec(), ctx.Height, fees)
		require.NoError(t, err)
		all := append([]consensus.Tx{buildCoinbaseTx(ctx.Height, reward, miner.pk)}, txs...)
		blk = &consensus.Block{
			Header: consensus.BlockHeader{
				Version:    1,
				PrevBlock:  ctx.PrevHash,
				MerkleRoot: consensus.MerkleRoot(all),
				Time:       chooseValidTimestamp(ctx.PrevTimes, c.now(), c.Spec().Consensus.MaxFutureDriftSecs),
				Bits:       *ctx.ExpectedBits,
			},
			Txs: all,
		}
		height = ctx.Height
		return nil
	})
	require.NoError(t, err)
	target := consensus.BitsToTarget(blk.Header.Bits)
	for !consensus.CheckProofOfWork(consensus.BlockHash(blk.Header), target) {
		blk.Header.Nonce++
	}
	return height, blk
}

func applyNext(t *testing.T, c *ChainState, miner testKey, fees int64, txs ...consensus.Tx) *consensus.Block {
	t.Helper()
	height, blk := assembleBlock(t, c, miner, fees, txs...)
	_, err := c.ApplyBlock(height, blk)
	require.NoError(t, err)
	return blk
}

func coinbaseOutPoint(blk *consensus.Block) consensus.OutPoint {
	return consensus.OutPoint{TxID: blk.Txs[0].TxID(), Vout: 0}
}

func spendTx(prev consensus.OutPoint, outs ...consensus.TxOut) consensus.Tx {
	return consensus.Tx{
		Version: 1,
		Inputs:  []consensus.TxIn{{Prevout: prev}},
		Outputs: outs,
	}
}

func payTo(k testKey, value int64) consensus.TxOut {
	return consensus.TxOut{Value: value, Type: consensus.P2PQ(k.pk)}
}

func signTx(t *testing.T, tx *consensus.Tx, k testKey) {
	t.Helper()
	sighash := consensus.Sighash(tx)
	for i := range tx.Inputs {
		sig, err := crypto.Sign(k.sk, sighash[:])
		require.NoError(t, err)
		tx.Inputs[i].Signature = sig
	}
}

func requireCode(t *testing.T, err error, code consensus.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, consensus.CodeOf(err), "err=%v", err)
}

func countUtxos(t *testing.T, st store.Store) int {
	t.Helper()
	n := 0
	require.NoError(t, st.ForEachUTXO(func(consensus.OutPoint, consensus.UtxoEntry) error {
		n++
		return nil
	}))
	return n
}
