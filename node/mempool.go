package node

import (
	"math/bits"
	"sort"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
)

type mempoolEntry struct {
	tx   *consensus.Tx
	size int
}

// Mempool holds structurally valid transactions waiting for a block.
// Spendability and signatures are only checked by SelectForBlock, against
// the UTXO state current at assembly time.
type Mempool struct {
	mu      sync.RWMutex
	spec    *consensus.ChainSpec
	maxTxs  int
	txs     map[consensus.Hash32]*mempoolEntry
	rejects *expirable.LRU[consensus.Hash32, consensus.ErrorCode]
	log     *zap.Logger
	metrics *Metrics
}

func NewMempool(spec *consensus.ChainSpec, cfg MempoolConfig, log *zap.Logger, m *Metrics) *Mempool {
	if m == nil {
		m = NewMetrics(nil)
	}
	maxTxs := cfg.MaxTxs
	if maxTxs <= 0 {
		maxTxs = DefaultConfig().Mempool.MaxTxs
	}
	cacheSize := cfg.RejectCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().Mempool.RejectCacheSize
	}
	return &Mempool{
		spec:    spec,
		maxTxs:  maxTxs,
		txs:     make(map[consensus.Hash32]*mempoolEntry),
		rejects: expirable.NewLRU[consensus.Hash32, consensus.ErrorCode](cacheSize, nil, cfg.RejectCacheTTL),
		log:     orNop(log),
		metrics: m,
	}
}

// reject caches the verdict under the hash of the full encoding, so a
// variant with different signatures is checked again.
func (p *Mempool) reject(id, wtxid consensus.Hash32, err error) error {
	code := consensus.CodeOf(err)
	p.metrics.MempoolRejected.WithLabelValues(codeLabel(err)).Inc()
	p.log.Debug("tx rejected", zap.Stringer("txid", id), zap.Error(err))
	if code != "" && code != consensus.MEMPOOL_ERR_FULL && code != consensus.MEMPOOL_ERR_DUPLICATE {
		p.rejects.Add(wtxid, code)
	}
	return err
}

// Add admits tx after the structural checks. It returns the txid.
func (p *Mempool) Add(tx *consensus.Tx) (consensus.Hash32, error) {
	if tx == nil {
		return consensus.Hash32{}, consensus.NewError(consensus.TX_ERR_PARSE, "nil transaction")
	}
	id := tx.TxID()
	wtxid := consensus.MerkleLeaf(tx)
	if code, ok := p.rejects.Get(wtxid); ok {
		p.metrics.MempoolRejected.WithLabelValues(string(code)).Inc()
		return id, consensus.NewError(code, "recently rejected")
	}
	if tx.IsCoinbase() {
		return id, p.reject(id, wtxid, consensus.NewError(consensus.MEMPOOL_ERR_COINBASE, "coinbase transactions are not relayed"))
	}
	size, err := consensus.CheckTxSanity(p.spec, tx, false)
	if err != nil {
		return id, p.reject(id, wtxid, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[id]; ok {
		return id, p.reject(id, wtxid, consensus.NewError(consensus.MEMPOOL_ERR_DUPLICATE, "transaction already in mempool"))
	}
	if len(p.txs) >= p.maxTxs {
		return id, p.reject(id, wtxid, consensus.NewError(consensus.MEMPOOL_ERR_FULL, "mempool full"))
	}
	cp := cloneTx(tx)
	p.txs[id] = &mempoolEntry{tx: cp, size: size}
	p.metrics.MempoolSize.Set(float64(len(p.txs)))
	p.log.Debug("tx accepted", zap.Stringer("txid", id), zap.Int("size", size))
	return id, nil
}

func (p *Mempool) Remove(id consensus.Hash32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(id)
}

func (p *Mempool) removeLocked(id consensus.Hash32) bool {
	if _, ok := p.txs[id]; !ok {
		return false
	}
	delete(p.txs, id)
	p.metrics.MempoolSize.Set(float64(len(p.txs)))
	return true
}

func (p *Mempool) Get(id consensus.Hash32) (*consensus.Tx, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.txs[id]
	if !ok {
		return nil, false
	}
	return cloneTx(e.tx), true
}

// All returns copies of every pooled transaction ordered by txid.
func (p *Mempool) All() []*consensus.Tx {
	p.mu.RLock()
	ids := make([]consensus.Hash32, 0, len(p.txs))
	for id := range p.txs {
		ids = append(ids, id)
	}
	sortHashes(ids)
	out := make([]*consensus.Tx, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneTx(p.txs[id].tx))
	}
	p.mu.RUnlock()
	return out
}

func (p *Mempool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

func (p *Mempool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = make(map[consensus.Hash32]*mempoolEntry)
	p.metrics.MempoolSize.Set(0)
}

// RemoveForBlock drops the block's transactions and any pooled
// transaction that spends an outpoint the block spent.
func (p *Mempool) RemoveForBlock(blk *consensus.Block) int {
	spent := make(map[consensus.OutPoint]struct{})
	ids := make(map[consensus.Hash32]struct{}, len(blk.Txs))
	for i := range blk.Txs {
		ids[blk.Txs[i].TxID()] = struct{}{}
		for _, in := range blk.Txs[i].Inputs {
			spent[in.Prevout] = struct{}{}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for id, e := range p.txs {
		_, mined := ids[id]
		conflict := false
		if !mined {
			for _, in := range e.tx.Inputs {
				if _, ok := spent[in.Prevout]; ok {
					conflict = true
					break
				}
			}
		}
		if mined || conflict {
			p.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Selection is the outcome of SelectForBlock.
type Selection struct {
	Txs  []consensus.Tx
	Fees int64
	// Evicted lists transactions that failed re-validation and were
	// removed from the pool.
	Evicted []consensus.Hash32
}

type candidate struct {
	id   consensus.Hash32
	tx   *consensus.Tx
	size int
	fee  int64
}

// higher fee per byte first, then txid
func (a candidate) better(b candidate) bool {
	lh, ll := bits.Mul64(uint64(a.fee), uint64(b.size)) // #nosec G115 -- validated fees and sizes are non-negative.
	rh, rl := bits.Mul64(uint64(b.fee), uint64(a.size)) // #nosec G115 -- validated fees and sizes are non-negative.
	if lh != rh {
		return lh > rh
	}
	if ll != rl {
		return ll > rl
	}
	return lessHash(a.id, b.id)
}

// SelectForBlock re-validates pooled transactions against utxos as of
// height and returns up to limit of them, best fee rate first, that can
// all be included in one block. maxBytes bounds the summed encoded size
// of the selection; transactions that do not fit are skipped and stay
// pooled. A limit or maxBytes <= 0 means no bound. Transactions that are
// no longer valid are evicted; immature coinbase spends stay for a later
// block.
func (p *Mempool) SelectForBlock(height uint64, utxos consensus.UtxoLookup, verifier crypto.Verifier, limit, maxBytes int) (*Selection, error) {
	p.mu.RLock()
	pool := make([]candidate, 0, len(p.txs))
	for id, e := range p.txs {
		pool = append(pool, candidate{id: id, tx: e.tx, size: e.size})
	}
	p.mu.RUnlock()

	v := consensus.TxValidator{Spec: p.spec, Verifier: verifier}
	sel := &Selection{}
	var evict []consensus.Hash32
	ready := pool[:0]
	for _, c := range pool {
		s, err := v.Validate(height, c.tx, false, utxos)
		if err == nil {
			err = consensus.CheckFeePolicy(p.spec, s)
		}
		if err != nil {
			if !consensus.IsRejection(err) {
				return nil, err
			}
			if consensus.CodeOf(err) != consensus.TX_ERR_COINBASE_IMMATURE {
				evict = append(evict, c.id)
			}
			continue
		}
		c.fee = s.Fee
		ready = append(ready, c)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].better(ready[j]) })

	view := consensus.NewUtxoView(utxos)
	used := 0
	for _, c := range ready {
		if limit > 0 && len(sel.Txs) >= limit {
			break
		}
		if maxBytes > 0 && used+c.size > maxBytes {
			continue
		}
		s, err := v.Validate(height, c.tx, false, view)
		if err != nil {
			if !consensus.IsRejection(err) {
				return nil, err
			}
			// conflicts with a better-paying selection
			continue
		}
		for _, in := range c.tx.Inputs {
			view.Spend(in.Prevout)
		}
		if err := view.AddTxOutputs(c.tx, s.TxID, height, false); err != nil {
			continue
		}
		sel.Txs = append(sel.Txs, *cloneTx(c.tx))
		sel.Fees += s.Fee
		used += c.size
	}

	if len(evict) > 0 {
		p.mu.Lock()
		for _, id := range evict {
			if p.removeLocked(id) {
				sel.Evicted = append(sel.Evicted, id)
			}
		}
		p.mu.Unlock()
		p.log.Info("evicted invalid transactions", zap.Int("count", len(sel.Evicted)))
	}
	return sel, nil
}

func cloneTx(tx *consensus.Tx) *consensus.Tx {
	cp := &consensus.Tx{
		Version:  tx.Version,
		Inputs:   make([]consensus.TxIn, len(tx.Inputs)),
		Outputs:  make([]consensus.TxOut, len(tx.Outputs)),
		LockTime: tx.LockTime,
	}
	for i, in := range tx.Inputs {
		cp.Inputs[i] = in
		cp.Inputs[i].Signature = append([]byte(nil), in.Signature...)
	}
	for i, out := range tx.Outputs {
		cp.Outputs[i] = consensus.TxOut{Value: out.Value, Type: out.Type.Clone()}
	}
	return cp
}

func lessHash(a, b consensus.Hash32) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func sortHashes(hs []consensus.Hash32) {
	sort.Slice(hs, func(i, j int) bool { return lessHash(hs[i], hs[j]) })
}
