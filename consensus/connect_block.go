package consensus

import (
	"quantumcoin.dev/node/crypto"
)

// BlockContext is everything about the chain that a block is checked
// against besides the UTXO set.
type BlockContext struct {
	Height uint64
	// PrevHash is the current tip; zero when connecting genesis.
	PrevHash Hash32
	// PrevTimes holds up to MedianTimeSpan ancestor timestamps, most recent
	// last. Empty for genesis.
	PrevTimes []uint64
	// ExpectedBits, when non-nil, is the output of NextWorkRequired.
	ExpectedBits *uint32
	// Now is the local clock in unix seconds; zero disables the
	// future-drift check.
	Now uint64
}

type BlockSummary struct {
	Hash          Hash32
	Height        uint64
	Subsidy       int64
	Fees          int64
	CoinbaseValue int64
	TxIDs         []Hash32
}

// CheckBlockHeader runs the header rules in order: proof of work, target
// range, linkage, timestamp.
func CheckBlockHeader(spec *ChainSpec, header BlockHeader, ctx BlockContext) (Hash32, error) {
	hash := BlockHash(header)
	target := BitsToTarget(header.Bits)
	if !CheckProofOfWork(hash, target) {
		return hash, txerrf(BLOCK_ERR_POW_INVALID, "hash %s above target", hash)
	}
	if target.Cmp(spec.PowLimit()) > 0 {
		return hash, txerrf(BLOCK_ERR_TARGET_INVALID, "bits 0x%08x above pow limit", header.Bits)
	}
	if ctx.ExpectedBits != nil && header.Bits != *ctx.ExpectedBits {
		return hash, txerrf(BLOCK_ERR_TARGET_INVALID, "bits 0x%08x, want 0x%08x", header.Bits, *ctx.ExpectedBits)
	}
	if header.PrevBlock != ctx.PrevHash {
		return hash, txerrf(BLOCK_ERR_HASH_INVALID, "prev %s does not extend tip %s", header.PrevBlock, ctx.PrevHash)
	}
	if len(ctx.PrevTimes) > 0 {
		if mtp := MedianTimePast(ctx.PrevTimes); header.Time <= mtp {
			return hash, txerrf(BLOCK_ERR_TIMESTAMP_INVALID, "time %d <= median past %d", header.Time, mtp)
		}
	}
	if ctx.Now != 0 && header.Time > ctx.Now+spec.Consensus.MaxFutureDriftSecs {
		return hash, txerrf(BLOCK_ERR_TIMESTAMP_INVALID, "time %d too far in the future", header.Time)
	}
	return hash, nil
}

// ConnectBlock validates blk against ctx and base and returns the staged
// UTXO changes. base is never written; on error the view must be
// discarded.
func ConnectBlock(spec *ChainSpec, blk *Block, ctx BlockContext, base UtxoLookup, verifier crypto.Verifier) (*BlockSummary, *UtxoView, error) {
	if blk == nil || len(blk.Txs) == 0 {
		return nil, nil, txerr(BLOCK_ERR_COINBASE_INVALID, "block has no transactions")
	}
	hash, err := CheckBlockHeader(spec, blk.Header, ctx)
	if err != nil {
		return nil, nil, err
	}
	if size := len(blk.Bytes()); size > spec.Consensus.MaxBlockSize {
		return nil, nil, txerrf(BLOCK_ERR_PARSE, "block size %d > %d", size, spec.Consensus.MaxBlockSize)
	}
	if root := MerkleRoot(blk.Txs); root != blk.Header.MerkleRoot {
		return nil, nil, txerrf(BLOCK_ERR_MERKLE_INVALID, "computed %s, header %s", root, blk.Header.MerkleRoot)
	}

	coinbase := &blk.Txs[0]
	if !coinbase.IsCoinbase() {
		return nil, nil, txerr(BLOCK_ERR_COINBASE_INVALID, "first transaction has inputs")
	}
	if coinbase.LockTime != uint32(ctx.Height) { // #nosec G115 -- heights wrap only past 2^32 blocks.
		return nil, nil, txerrf(BLOCK_ERR_COINBASE_INVALID, "coinbase lock_time %d, want height %d", coinbase.LockTime, ctx.Height)
	}
	v := TxValidator{Spec: spec, Verifier: verifier}
	cbSummary, err := v.Validate(ctx.Height, coinbase, true, nil)
	if err != nil {
		return nil, nil, err
	}

	view := NewUtxoView(base)
	summary := &BlockSummary{
		Hash:          hash,
		Height:        ctx.Height,
		Subsidy:       BlockSubsidy(spec, ctx.Height),
		CoinbaseValue: cbSummary.SumOut,
		TxIDs:         make([]Hash32, 0, len(blk.Txs)),
	}
	summary.TxIDs = append(summary.TxIDs, cbSummary.TxID)

	for i := 1; i < len(blk.Txs); i++ {
		tx := &blk.Txs[i]
		if tx.IsCoinbase() {
			return nil, nil, txerrf(BLOCK_ERR_COINBASE_INVALID, "tx %d has no inputs", i)
		}
		s, err := v.Validate(ctx.Height, tx, false, view)
		if err != nil {
			return nil, nil, err
		}
		for _, in := range tx.Inputs {
			view.Spend(in.Prevout)
		}
		if err := view.AddTxOutputs(tx, s.TxID, ctx.Height, false); err != nil {
			return nil, nil, err
		}
		if summary.Fees, err = addInt64(summary.Fees, s.Fee); err != nil {
			return nil, nil, txerr(TX_ERR_VALUE_RANGE, "fee sum overflow")
		}
		summary.TxIDs = append(summary.TxIDs, s.TxID)
	}

	limit, err := MaxCoinbaseValue(spec, ctx.Height, summary.Fees)
	if err != nil {
		return nil, nil, txerr(BLOCK_ERR_SUBSIDY_EXCEEDED, "coinbase limit overflow")
	}
	if cbSummary.SumOut > limit {
		return nil, nil, txerrf(BLOCK_ERR_SUBSIDY_EXCEEDED, "coinbase pays %d > %d", cbSummary.SumOut, limit)
	}
	if err := view.AddTxOutputs(coinbase, cbSummary.TxID, ctx.Height, true); err != nil {
		return nil, nil, err
	}
	return summary, view, nil
}

// InMemoryChainState is a non-persistent chain for tests. It applies the
// same rules as node.ChainState without disk I/O.
type InMemoryChainState struct {
	Spec    *ChainSpec
	Utxos   UtxoSet
	HasTip  bool
	Height  uint64
	TipHash Hash32
	Headers []BlockHeader
}

func NewInMemoryChainState(spec *ChainSpec) *InMemoryChainState {
	return &InMemoryChainState{Spec: spec, Utxos: make(UtxoSet)}
}

func (s *InMemoryChainState) HeaderAt(height uint64) (BlockHeader, bool, error) {
	if height >= uint64(len(s.Headers)) {
		return BlockHeader{}, false, nil
	}
	return s.Headers[height], true, nil
}

// NextContext describes where the next block must attach.
func (s *InMemoryChainState) NextContext() (BlockContext, error) {
	if !s.HasTip {
		bits := s.Spec.Consensus.GenesisBits
		return BlockContext{Height: 0, ExpectedBits: &bits}, nil
	}
	prev := s.Headers[s.Height]
	bits, err := NextWorkRequired(s.Spec, s.Height, prev, s)
	if err != nil {
		return BlockContext{}, err
	}
	start := 0
	if len(s.Headers) > MedianTimeSpan {
		start = len(s.Headers) - MedianTimeSpan
	}
	times := make([]uint64, 0, MedianTimeSpan)
	for _, h := range s.Headers[start:] {
		times = append(times, h.Time)
	}
	return BlockContext{Height: s.Height + 1, PrevHash: s.TipHash, PrevTimes: times, ExpectedBits: &bits}, nil
}

// ConnectBlock applies blk on top of the current tip. On error the state is
// unchanged.
func (s *InMemoryChainState) ConnectBlock(blk *Block) (*BlockSummary, error) {
	if s.Utxos == nil {
		s.Utxos = make(UtxoSet)
	}
	ctx, err := s.NextContext()
	if err != nil {
		return nil, err
	}
	summary, view, err := ConnectBlock(s.Spec, blk, ctx, s.Utxos, nil)
	if err != nil {
		return nil, err
	}
	view.ApplyTo(s.Utxos)
	s.Headers = append(s.Headers, blk.Header)
	s.Height = ctx.Height
	s.TipHash = summary.Hash
	s.HasTip = true
	return summary, nil
}
