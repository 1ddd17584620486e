package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenesisThenImmatureSpend(t *testing.T) {
	spec := testSpec()
	miner := newTestKey(1)
	st := NewInMemoryChainState(spec)

	genesis := connectNext(t, st, miner, 0)
	require.Len(t, st.Utxos, 1)
	cbID := genesis.Txs[0].TxID()
	entry, ok := st.Utxos[OutPoint{TxID: cbID}]
	require.True(t, ok)
	require.True(t, entry.Coinbase)
	require.Equal(t, uint64(0), entry.Height)
	require.Equal(t, BlockSubsidy(spec, 0), entry.Value)

	spend := spendTx(OutPoint{TxID: cbID}, TxOut{Value: entry.Value - 10_000, Type: P2PQ(miner.pk)})
	signTx(t, &spend, miner)
	blk := nextBlock(t, st, miner, 10_000, spend)
	_, err := st.ConnectBlock(blk)
	requireCode(t, err, TX_ERR_COINBASE_IMMATURE)
	require.Equal(t, uint64(0), st.Height)
	require.Len(t, st.Utxos, 1)
}

func TestMatureSpendAndIntraBlockChain(t *testing.T) {
	spec := testSpec()
	miner, alice := newTestKey(1), newTestKey(2)
	st := NewInMemoryChainState(spec)

	genesis := connectNext(t, st, miner, 0)
	for i := uint64(0); i < spec.TxPolicy.CoinbaseMaturity; i++ {
		connectNext(t, st, miner, 0)
	}
	cb := OutPoint{TxID: genesis.Txs[0].TxID()}
	value := st.Utxos[cb].Value

	first := spendTx(cb, TxOut{Value: value - 10_000, Type: P2PQ(alice.pk)})
	signTx(t, &first, miner)
	second := spendTx(OutPoint{TxID: first.TxID()}, TxOut{Value: value - 20_000, Type: P2PQ(miner.pk)})
	signTx(t, &second, alice)

	before := len(st.Utxos)
	blk := connectNext(t, st, miner, 20_000, first, second)
	_, spent := st.Utxos[cb]
	require.False(t, spent)
	_, mid := st.Utxos[OutPoint{TxID: first.TxID()}]
	require.False(t, mid, "output created and spent in one block never lands")
	_, last := st.Utxos[OutPoint{TxID: second.TxID()}]
	require.True(t, last)
	// -1 spent coinbase, +1 final output, +1 new coinbase.
	require.Len(t, st.Utxos, before+1)
	require.Equal(t, BlockHash(blk.Header), st.TipHash)
}

func TestDoubleSpendInOneBlockRejectedAtomically(t *testing.T) {
	spec := testSpec()
	miner, alice := newTestKey(1), newTestKey(2)
	st := NewInMemoryChainState(spec)

	genesis := connectNext(t, st, miner, 0)
	for i := uint64(0); i < spec.TxPolicy.CoinbaseMaturity; i++ {
		connectNext(t, st, miner, 0)
	}
	cb := OutPoint{TxID: genesis.Txs[0].TxID()}
	value := st.Utxos[cb].Value

	a := spendTx(cb, TxOut{Value: value - 10_000, Type: P2PQ(alice.pk)})
	signTx(t, &a, miner)
	b := spendTx(cb, TxOut{Value: value - 20_000, Type: P2PQ(miner.pk)})
	signTx(t, &b, miner)

	snapshot := make(UtxoSet, len(st.Utxos))
	for k, v := range st.Utxos {
		snapshot[k] = v
	}
	height, tip := st.Height, st.TipHash

	blk := nextBlock(t, st, miner, 30_000, a, b)
	_, err := st.ConnectBlock(blk)
	requireCode(t, err, TX_ERR_MISSING_UTXO)
	require.Equal(t, snapshot, st.Utxos)
	require.Equal(t, height, st.Height)
	require.Equal(t, tip, st.TipHash)
}

func TestConnectBlockHeaderRules(t *testing.T) {
	spec := testSpec()
	miner := newTestKey(1)

	t.Run("merkle mismatch", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		blk := nextBlock(t, st, miner, 0)
		blk.Header.MerkleRoot[0] ^= 1
		for !CheckProofOfWork(BlockHash(blk.Header), BitsToTarget(blk.Header.Bits)) {
			blk.Header.Nonce++
		}
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_MERKLE_INVALID)
	})

	t.Run("proof of work", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		blk := nextBlock(t, st, miner, 0)
		target := BitsToTarget(blk.Header.Bits)
		for CheckProofOfWork(BlockHash(blk.Header), target) {
			blk.Header.Nonce++
		}
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_POW_INVALID)
	})

	t.Run("linkage", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		connectNext(t, st, miner, 0)
		ctx, err := st.NextContext()
		require.NoError(t, err)
		txs := []Tx{coinbaseTx(1, 1000, miner.pk)}
		blk := mineBlock(t, Hash32{0x42}, *ctx.ExpectedBits, spec.Consensus.GenesisTime+600, txs)
		_, err = st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_HASH_INVALID)
	})

	t.Run("genesis must have zero prev", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		blk := mineBlock(t, Hash32{1}, spec.Consensus.GenesisBits, spec.Consensus.GenesisTime, []Tx{coinbaseTx(0, 1000, miner.pk)})
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_HASH_INVALID)
	})

	t.Run("timestamp not after median", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		connectNext(t, st, miner, 0)
		ctx, err := st.NextContext()
		require.NoError(t, err)
		blk := mineBlock(t, ctx.PrevHash, *ctx.ExpectedBits, spec.Consensus.GenesisTime, []Tx{coinbaseTx(1, 1000, miner.pk)})
		_, err = st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_TIMESTAMP_INVALID)
	})

	t.Run("wrong bits", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		blk := mineBlock(t, ZeroHash, 0x1f7fffff, spec.Consensus.GenesisTime, []Tx{coinbaseTx(0, 1000, miner.pk)})
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_TARGET_INVALID)
	})
}

func TestConnectBlockFutureDrift(t *testing.T) {
	spec := testSpec()
	miner := newTestKey(1)
	blk := mineBlock(t, ZeroHash, spec.Consensus.GenesisBits, 10_000, []Tx{coinbaseTx(0, 1000, miner.pk)})

	_, _, err := ConnectBlock(spec, blk, BlockContext{Now: 10_000 - spec.Consensus.MaxFutureDriftSecs - 1}, UtxoSet{}, nil)
	requireCode(t, err, BLOCK_ERR_TIMESTAMP_INVALID)

	_, _, err = ConnectBlock(spec, blk, BlockContext{Now: 10_000 - spec.Consensus.MaxFutureDriftSecs}, UtxoSet{}, nil)
	require.NoError(t, err)
}

func TestConnectBlockCoinbaseRules(t *testing.T) {
	spec := testSpec()
	miner := newTestKey(1)

	t.Run("subsidy exceeded", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		txs := []Tx{coinbaseTx(0, BlockSubsidy(spec, 0)+1, miner.pk)}
		blk := mineBlock(t, ZeroHash, spec.Consensus.GenesisBits, spec.Consensus.GenesisTime, txs)
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_SUBSIDY_EXCEEDED)
		require.Empty(t, st.Utxos)
		require.False(t, st.HasTip)
	})

	t.Run("exact subsidy accepted", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		txs := []Tx{coinbaseTx(0, BlockSubsidy(spec, 0), miner.pk)}
		blk := mineBlock(t, ZeroHash, spec.Consensus.GenesisBits, spec.Consensus.GenesisTime, txs)
		summary, err := st.ConnectBlock(blk)
		require.NoError(t, err)
		require.Equal(t, BlockSubsidy(spec, 0), summary.CoinbaseValue)
	})

	t.Run("first tx not coinbase", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		txs := []Tx{spendTx(fundOut, TxOut{Value: 1000, Type: P2PQ(miner.pk)})}
		blk := mineBlock(t, ZeroHash, spec.Consensus.GenesisBits, spec.Consensus.GenesisTime, txs)
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_COINBASE_INVALID)
	})

	t.Run("second coinbase", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		txs := []Tx{coinbaseTx(0, 1000, miner.pk), coinbaseTx(0, 2000, miner.pk)}
		blk := mineBlock(t, ZeroHash, spec.Consensus.GenesisBits, spec.Consensus.GenesisTime, txs)
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_COINBASE_INVALID)
	})

	t.Run("lock_time must equal height", func(t *testing.T) {
		st := NewInMemoryChainState(spec)
		txs := []Tx{coinbaseTx(7, 1000, miner.pk)}
		blk := mineBlock(t, ZeroHash, spec.Consensus.GenesisBits, spec.Consensus.GenesisTime, txs)
		_, err := st.ConnectBlock(blk)
		requireCode(t, err, BLOCK_ERR_COINBASE_INVALID)
	})

	t.Run("empty block", func(t *testing.T) {
		_, _, err := ConnectBlock(spec, &Block{}, BlockContext{}, UtxoSet{}, nil)
		requireCode(t, err, BLOCK_ERR_COINBASE_INVALID)
	})
}

func TestConnectBlockCollectsFees(t *testing.T) {
	spec := testSpec()
	miner, alice := newTestKey(1), newTestKey(2)
	st := NewInMemoryChainState(spec)
	genesis := connectNext(t, st, miner, 0)
	for i := uint64(0); i < spec.TxPolicy.CoinbaseMaturity; i++ {
		connectNext(t, st, miner, 0)
	}
	cb := OutPoint{TxID: genesis.Txs[0].TxID()}
	value := st.Utxos[cb].Value
	tx := spendTx(cb, TxOut{Value: value - 25_000, Type: P2PQ(alice.pk)})
	signTx(t, &tx, miner)

	greedy := nextBlock(t, st, miner, 25_001, tx)
	_, err := st.ConnectBlock(greedy)
	requireCode(t, err, BLOCK_ERR_SUBSIDY_EXCEEDED)

	blk := nextBlock(t, st, miner, 25_000, tx)
	summary, err := st.ConnectBlock(blk)
	require.NoError(t, err)
	require.Equal(t, int64(25_000), summary.Fees)
	require.Len(t, summary.TxIDs, 2)
}

func TestUtxoViewStaging(t *testing.T) {
	k := newTestKey(1)
	base := UtxoSet{fundOut: {Value: 5, Type: P2PQ(k.pk)}}
	v := NewUtxoView(base)

	op := OutPoint{TxID: Hash32{2}}
	require.NoError(t, v.Add(op, UtxoEntry{Value: 7}))
	requireCode(t, v.Add(op, UtxoEntry{Value: 8}), TX_ERR_DUPLICATE_OUTPUT)
	requireCode(t, v.Add(fundOut, UtxoEntry{Value: 8}), TX_ERR_DUPLICATE_OUTPUT)

	v.Spend(fundOut)
	_, ok, err := v.LookupUtxo(fundOut)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, _ = base.LookupUtxo(fundOut)
	require.True(t, ok, "base untouched")

	v.Spend(op)
	require.Empty(t, v.Created())
	require.Equal(t, []OutPoint{fundOut}, v.Spent())

	v.ApplyTo(base)
	require.Empty(t, base)
}
