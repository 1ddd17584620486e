package node

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
	"quantumcoin.dev/node/node/store"
)

// ChainState owns the persistent UTXO set and the tip. ApplyBlock is the
// only writer and runs under the write lock; readers see either the state
// before a commit or after it.
type ChainState struct {
	mu       sync.RWMutex
	spec     *consensus.ChainSpec
	store    store.Store
	verifier crypto.Verifier
	log      *zap.Logger
	metrics  *Metrics
	now      func() uint64

	tip    store.Tip
	hasTip bool
	// recent header times, oldest first, at most MedianTimeSpan
	times []uint64
	// closed and replaced on every tip change
	tipCh chan struct{}
}

type ChainStateOption func(*ChainState)

func WithVerifier(v crypto.Verifier) ChainStateOption {
	return func(c *ChainState) { c.verifier = v }
}

func WithLogger(l *zap.Logger) ChainStateOption {
	return func(c *ChainState) { c.log = orNop(l) }
}

func WithMetrics(m *Metrics) ChainStateOption {
	return func(c *ChainState) { c.metrics = m }
}

// WithClock overrides the unix-seconds clock used for the future-drift
// rule.
func WithClock(now func() uint64) ChainStateOption {
	return func(c *ChainState) { c.now = now }
}

func NewChainState(spec *consensus.ChainSpec, st store.Store, opts ...ChainStateOption) (*ChainState, error) {
	if spec == nil {
		return nil, errors.New("nil chainspec")
	}
	if st == nil {
		return nil, errors.New("nil store")
	}
	c := &ChainState{
		spec:     spec,
		store:    st,
		verifier: crypto.StdCryptoProvider{},
		log:      zap.NewNop(),
		metrics:  NewMetrics(nil),
		now:      unixNowU64,
		tipCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	tip, ok, err := st.GetTip()
	if err != nil {
		return nil, errors.Wrap(err, "load tip")
	}
	if ok {
		c.tip, c.hasTip = tip, true
		if c.times, err = c.loadRecentTimes(tip.Height); err != nil {
			return nil, err
		}
		c.metrics.TipHeight.Set(float64(tip.Height))
	}
	return c, nil
}

func (c *ChainState) loadRecentTimes(tipHeight uint64) ([]uint64, error) {
	start := uint64(0)
	if tipHeight+1 > consensus.MedianTimeSpan {
		start = tipHeight + 1 - consensus.MedianTimeSpan
	}
	times := make([]uint64, 0, consensus.MedianTimeSpan)
	for h := start; h <= tipHeight; h++ {
		hdr, ok, err := c.HeaderAt(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Errorf("block at height %d missing from store", h)
		}
		times = append(times, hdr.Time)
	}
	return times, nil
}

func (c *ChainState) Spec() *consensus.ChainSpec { return c.spec }

// Tip returns the current tip; ok is false before genesis is applied.
func (c *ChainState) Tip() (store.Tip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip, c.hasTip
}

// TipChanged returns a channel that is closed the next time the tip moves.
func (c *ChainState) TipChanged() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipCh
}

func (c *ChainState) GetUTXO(op consensus.OutPoint) (consensus.UtxoEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetUTXO(op)
}

// HeaderAt reads a stored header by height. Committed blocks are
// immutable, so no lock is needed.
func (c *ChainState) HeaderAt(height uint64) (consensus.BlockHeader, bool, error) {
	blk, ok, err := store.ReadBlock(c.store, height)
	if err != nil || !ok {
		return consensus.BlockHeader{}, ok, err
	}
	return blk.Header, true, nil
}

// BlockAt reads a stored block by height.
func (c *ChainState) BlockAt(height uint64) (*consensus.Block, bool, error) {
	return store.ReadBlock(c.store, height)
}

// View runs fn under the read lock with a lookup over the committed UTXO
// set and the context the next block must satisfy. Block assembly uses it
// to get a consistent snapshot.
func (c *ChainState) View(fn func(ctx consensus.BlockContext, utxos consensus.UtxoLookup) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, err := c.nextContextLocked()
	if err != nil {
		return err
	}
	return fn(ctx, consensus.UtxoLookupFunc(c.store.GetUTXO))
}

func (c *ChainState) nextContextLocked() (consensus.BlockContext, error) {
	if !c.hasTip {
		bits := c.spec.Consensus.GenesisBits
		return consensus.BlockContext{Height: 0, ExpectedBits: &bits}, nil
	}
	prev, ok, err := c.HeaderAt(c.tip.Height)
	if err != nil {
		return consensus.BlockContext{}, err
	}
	if !ok {
		return consensus.BlockContext{}, errors.Errorf("tip block %d missing from store", c.tip.Height)
	}
	bits, err := consensus.NextWorkRequired(c.spec, c.tip.Height, prev, c)
	if err != nil {
		return consensus.BlockContext{}, err
	}
	return consensus.BlockContext{
		Height:       c.tip.Height + 1,
		PrevHash:     c.tip.Hash,
		PrevTimes:    append([]uint64(nil), c.times...),
		ExpectedBits: &bits,
	}, nil
}

// ApplyBlock validates blk as the block at height and commits it together
// with its UTXO changes in one store batch. Any failure leaves the store
// and the tip untouched.
func (c *ChainState) ApplyBlock(height uint64, blk *consensus.Block) (*consensus.BlockSummary, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	summary, batch, err := c.connectLocked(height, blk)
	if err != nil {
		c.metrics.BlocksRejected.WithLabelValues(codeLabel(err)).Inc()
		c.log.Warn("block rejected", zap.Uint64("height", height), zap.Error(err))
		return nil, err
	}
	if err := c.store.Commit(batch); err != nil {
		c.metrics.BlocksRejected.WithLabelValues(codeLabel(err)).Inc()
		c.log.Error("block commit failed", zap.Uint64("height", height), zap.Stringer("hash", summary.Hash), zap.Error(err))
		return nil, errors.Wrapf(err, "commit block %d", height)
	}

	c.tip = store.Tip{Hash: summary.Hash, Height: height}
	c.hasTip = true
	c.times = append(c.times, blk.Header.Time)
	if len(c.times) > consensus.MedianTimeSpan {
		c.times = c.times[len(c.times)-consensus.MedianTimeSpan:]
	}
	close(c.tipCh)
	c.tipCh = make(chan struct{})

	c.metrics.BlocksApplied.Inc()
	c.metrics.TipHeight.Set(float64(height))
	c.metrics.UtxoBatchOps.Set(float64(batch.UtxoOps()))
	c.metrics.BlockApplySeconds.Observe(time.Since(start).Seconds())
	c.log.Info("block applied",
		zap.Uint64("height", height),
		zap.Stringer("hash", summary.Hash),
		zap.Int("txs", len(blk.Txs)),
		zap.Int64("fees", summary.Fees),
		zap.Int("utxo_ops", batch.UtxoOps()),
	)
	return summary, nil
}

func (c *ChainState) connectLocked(height uint64, blk *consensus.Block) (*consensus.BlockSummary, *store.Batch, error) {
	ctx, err := c.nextContextLocked()
	if err != nil {
		return nil, nil, err
	}
	if height != ctx.Height {
		return nil, nil, consensus.NewError(consensus.BLOCK_ERR_HASH_INVALID,
			"height does not extend the tip")
	}
	ctx.Now = c.now()
	summary, view, err := consensus.ConnectBlock(c.spec, blk, ctx, consensus.UtxoLookupFunc(c.store.GetUTXO), c.verifier)
	if err != nil {
		return nil, nil, err
	}
	batch := store.NewBatch()
	for _, op := range view.Spent() {
		batch.DeleteUTXO(op)
	}
	for _, cu := range view.Created() {
		batch.PutUTXO(cu.OutPoint, cu.Entry)
	}
	batch.PutBlock(height, summary.Hash, blk.Bytes())
	batch.SetTip(store.Tip{Hash: summary.Hash, Height: height})
	return summary, batch, nil
}

// Balance sums the unspent outputs whose public key derives to addr.
func (c *ChainState) Balance(addr string) (int64, error) {
	want, err := crypto.DecodeAddress(c.spec.Network.AddressPrefix, addr)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	err = c.store.ForEachUTXO(func(_ consensus.OutPoint, e consensus.UtxoEntry) error {
		if crypto.Hash160(e.Type.Pubkey) != want {
			return nil
		}
		if e.Value > 0 && total > (1<<63-1)-e.Value {
			return errors.New("balance overflows int64")
		}
		total += e.Value
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "scan utxos")
	}
	return total, nil
}

func unixNowU64() uint64 {
	now := time.Now().Unix()
	if now <= 0 {
		return 0
	}
	return uint64(now)
}
