package node

import (
	"context"
	"math"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
)

var (
	// ErrStaleTip means the tip moved while a template was being solved.
	ErrStaleTip = errors.New("tip changed during nonce search")

	errSolved = errors.New("solved")
)

const (
	// how often a worker looks at ctx, in hashes
	cancelCheckInterval = 1 << 12

	// widest CompactSize prefix, reserved for the block's tx count
	maxCompactSizeLen = 9
)

type MinedBlock struct {
	Height    uint64
	Hash      consensus.Hash32
	Timestamp uint64
	Nonce     uint32
	TxCount   int
	Fees      int64
}

// Template is a block ready for the nonce search, plus the tip channel it
// was built against.
type Template struct {
	Block      *consensus.Block
	Height     uint64
	Target     *big.Int
	Fees       int64
	tipChanged <-chan struct{}
}

type Miner struct {
	chain  *ChainState
	pool   *Mempool
	cfg    MinerConfig
	pubkey crypto.PublicKey
	log    *zap.Logger
}

func NewMiner(chain *ChainState, pool *Mempool, cfg MinerConfig, log *zap.Logger) (*Miner, error) {
	if chain == nil {
		return nil, errors.New("nil chainstate")
	}
	if pool == nil {
		return nil, errors.New("nil mempool")
	}
	pk, err := cfg.Pubkey()
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Miner{chain: chain, pool: pool, cfg: cfg, pubkey: pk, log: orNop(log)}, nil
}

func (m *Miner) MineN(ctx context.Context, blocks int) ([]MinedBlock, error) {
	if blocks < 0 {
		return nil, errors.New("blocks must be >= 0")
	}
	out := make([]MinedBlock, 0, blocks)
	for i := 0; i < blocks; i++ {
		mb, err := m.MineOne(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, *mb)
	}
	return out, nil
}

// Run mines until ctx is cancelled.
func (m *Miner) Run(ctx context.Context) error {
	for {
		mb, err := m.MineOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.log.Info("mined block",
			zap.Uint64("height", mb.Height),
			zap.Stringer("hash", mb.Hash),
			zap.Int("txs", mb.TxCount),
			zap.String("fees", FormatAmount(mb.Fees, m.chain.Spec().Network.Decimals)),
		)
	}
}

// MineOne builds a template on the current tip, searches for a nonce and
// applies the block. A template made stale by another block is rebuilt.
func (m *Miner) MineOne(ctx context.Context) (*MinedBlock, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tpl, err := m.BuildTemplate()
		if err != nil {
			return nil, err
		}
		blk, err := m.Solve(ctx, tpl)
		if errors.Is(err, ErrStaleTip) {
			m.log.Debug("template stale, rebuilding", zap.Uint64("height", tpl.Height))
			continue
		}
		if err != nil {
			return nil, err
		}
		summary, err := m.chain.ApplyBlock(tpl.Height, blk)
		if err != nil {
			if consensus.CodeOf(err) == consensus.BLOCK_ERR_HASH_INVALID {
				continue
			}
			return nil, err
		}
		m.pool.RemoveForBlock(blk)
		return &MinedBlock{
			Height:    summary.Height,
			Hash:      summary.Hash,
			Timestamp: blk.Header.Time,
			Nonce:     blk.Header.Nonce,
			TxCount:   len(blk.Txs),
			Fees:      summary.Fees,
		}, nil
	}
}

// BuildTemplate snapshots the tip and the UTXO set, selects mempool
// transactions valid on top of it and assembles the coinbase.
func (m *Miner) BuildTemplate() (*Template, error) {
	spec := m.chain.Spec()
	var tpl *Template
	err := m.chain.View(func(ctx consensus.BlockContext, utxos consensus.UtxoLookup) error {
		// the coinbase encoding does not depend on its value
		placeholder := buildCoinbaseTx(ctx.Height, 0, m.pubkey)
		budget := spec.Consensus.MaxBlockSize - consensus.BlockHeaderSize - maxCompactSizeLen - placeholder.SerializeSize()
		sel := &Selection{}
		if budget > 0 {
			var err error
			sel, err = m.pool.SelectForBlock(ctx.Height, utxos, m.chain.verifier, m.cfg.MaxTxPerBlock, budget)
			if err != nil {
				return err
			}
		}
		reward, err := consensus.MaxCoinbaseValue(spec, ctx.Height, sel.Fees)
		if err != nil {
			return err
		}
		txs := make([]consensus.Tx, 0, 1+len(sel.Txs))
		txs = append(txs, buildCoinbaseTx(ctx.Height, reward, m.pubkey))
		txs = append(txs, sel.Txs...)
		bits := *ctx.ExpectedBits
		blk := &consensus.Block{
			Header: consensus.BlockHeader{
				Version:    1,
				PrevBlock:  ctx.PrevHash,
				MerkleRoot: consensus.MerkleRoot(txs),
				Time:       chooseValidTimestamp(ctx.PrevTimes, m.chain.now(), spec.Consensus.MaxFutureDriftSecs),
				Bits:       bits,
			},
			Txs: txs,
		}
		tpl = &Template{
			Block:      blk,
			Height:     ctx.Height,
			Target:     consensus.BitsToTarget(bits),
			Fees:       sel.Fees,
			tipChanged: m.chain.tipCh,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// Solve searches the nonce space of tpl on the configured number of
// workers. It stops on ctx cancellation, on success and with ErrStaleTip
// when the chain tip moves. When all nonces fail the timestamp is bumped
// and the search restarts.
func (m *Miner) Solve(ctx context.Context, tpl *Template) (*consensus.Block, error) {
	header := tpl.Block.Header
	for {
		found, err := m.searchNonces(ctx, header, tpl.Target, tpl.tipChanged)
		if err != nil {
			return nil, err
		}
		if found != nil {
			blk := *tpl.Block
			blk.Header = *found
			return &blk, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header.Time++
		header.Nonce = 0
	}
}

func (m *Miner) searchNonces(ctx context.Context, header consensus.BlockHeader, target *big.Int, tipChanged <-chan struct{}) (*consensus.BlockHeader, error) {
	var result atomic.Pointer[consensus.BlockHeader]
	workers := uint64(m.cfg.Workers) // #nosec G115 -- validated positive.
	g, gctx := errgroup.WithContext(ctx)

	var wg sync.WaitGroup
	for w := uint64(0); w < workers; w++ {
		w := w
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			h := header
			var n uint64
			for nonce := w; nonce <= math.MaxUint32; nonce += workers {
				if n++; n%cancelCheckInterval == 0 && gctx.Err() != nil {
					return nil
				}
				h.Nonce = uint32(nonce) // #nosec G115 -- bounded by the loop condition.
				if consensus.CheckProofOfWork(consensus.BlockHash(h), target) {
					found := h
					result.CompareAndSwap(nil, &found)
					return errSolved
				}
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	g.Go(func() error {
		select {
		case <-tipChanged:
			return ErrStaleTip
		case <-done:
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	if found := result.Load(); found != nil {
		return found, nil
	}
	if err != nil && !errors.Is(err, errSolved) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// BuildGenesis mines the height-0 block paying the era-0 subsidy plus the
// premine to pubkey, at the chainspec genesis time and bits.
func BuildGenesis(ctx context.Context, spec *consensus.ChainSpec, pubkey crypto.PublicKey) (*consensus.Block, error) {
	if len(pubkey) != crypto.PublicKeySize {
		return nil, errors.Errorf("genesis pubkey: %d bytes, want %d", len(pubkey), crypto.PublicKeySize)
	}
	reward, err := consensus.MaxCoinbaseValue(spec, 0, 0)
	if err != nil {
		return nil, err
	}
	txs := []consensus.Tx{buildCoinbaseTx(0, reward, pubkey)}
	header := consensus.BlockHeader{
		Version:    1,
		MerkleRoot: consensus.MerkleRoot(txs),
		Time:       spec.Consensus.GenesisTime,
		Bits:       spec.Consensus.GenesisBits,
	}
	target := consensus.BitsToTarget(header.Bits)
	for nonce := uint64(0); ; nonce++ {
		if nonce > math.MaxUint32 {
			header.Time++
			nonce = 0
		}
		if nonce%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		header.Nonce = uint32(nonce) // #nosec G115 -- reset above before overflow.
		if consensus.CheckProofOfWork(consensus.BlockHash(header), target) {
			return &consensus.Block{Header: header, Txs: txs}, nil
		}
	}
}

// chooseValidTimestamp picks now when it satisfies the median-time-past
// and drift rules and MTP+1 otherwise.
func chooseValidTimestamp(prevTimes []uint64, now uint64, maxDrift uint64) uint64 {
	if len(prevTimes) == 0 {
		if now == 0 {
			return 1
		}
		return now
	}
	median := consensus.MedianTimePast(prevTimes)
	if now > median && now <= median+maxDrift {
		return now
	}
	return median + 1
}

// The coinbase lock_time carries the height so that coinbases of
// different blocks never share a txid.
func buildCoinbaseTx(height uint64, value int64, pubkey crypto.PublicKey) consensus.Tx {
	return consensus.Tx{
		Version:  1,
		Outputs:  []consensus.TxOut{{Value: value, Type: consensus.P2PQ(pubkey)}},
		LockTime: uint32(height), // #nosec G115 -- heights wrap only past 2^32 blocks.
	}
}
