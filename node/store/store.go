package store

import (
	"fmt"

	"github.com/pkg/errors"

	"quantumcoin.dev/node/consensus"
)

const (
	BackendBolt    = "bolt"
	BackendLevelDB = "leveldb"
)

// Tip is the hash and height of the last applied block.
type Tip struct {
	Hash   consensus.Hash32
	Height uint64
}

// Store is the persistent UTXO set plus the block archive. Every mutation
// goes through Commit, which applies a whole Batch or nothing.
type Store interface {
	GetUTXO(op consensus.OutPoint) (consensus.UtxoEntry, bool, error)
	ForEachUTXO(fn func(consensus.OutPoint, consensus.UtxoEntry) error) error
	GetTip() (Tip, bool, error)
	GetBlock(hash consensus.Hash32) (*consensus.Block, bool, error)
	GetHashByHeight(height uint64) (consensus.Hash32, bool, error)
	Commit(b *Batch) error
	Backend() string
	Close() error
}

type blockRecord struct {
	hash   consensus.Hash32
	height uint64
	raw    []byte
}

// Batch collects the writes of one block application.
type Batch struct {
	spent   []consensus.OutPoint
	created []consensus.CreatedUtxo
	blocks  []blockRecord
	tip     *Tip
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) DeleteUTXO(op consensus.OutPoint) {
	b.spent = append(b.spent, op)
}

func (b *Batch) PutUTXO(op consensus.OutPoint, e consensus.UtxoEntry) {
	b.created = append(b.created, consensus.CreatedUtxo{OutPoint: op, Entry: e})
}

// PutBlock archives the encoded block and indexes it by height.
func (b *Batch) PutBlock(height uint64, hash consensus.Hash32, raw []byte) {
	b.blocks = append(b.blocks, blockRecord{hash: hash, height: height, raw: raw})
}

func (b *Batch) SetTip(t Tip) {
	b.tip = &t
}

// UtxoOps is the number of UTXO deletes plus inserts.
func (b *Batch) UtxoOps() int {
	return len(b.spent) + len(b.created)
}

// StorageError reports an operational failure of the backing store, as
// opposed to a consensus rejection.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Options selects and locates a backend.
type Options struct {
	DataDir string
	Network string
	Backend string
}

// Open opens (creating if needed) the store for opts.Network under
// opts.DataDir. The manifest pins network, backend and encoding version;
// reopening with different values fails.
func Open(opts Options) (Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("datadir required")
	}
	if opts.Network == "" {
		return nil, errors.New("network required")
	}
	if opts.Backend == "" {
		opts.Backend = BackendBolt
	}
	chainDir := ChainDir(opts.DataDir, opts.Network)
	if err := ensureDir(chainDir); err != nil {
		return nil, err
	}
	if err := checkOrWriteManifest(chainDir, opts); err != nil {
		return nil, err
	}
	switch opts.Backend {
	case BackendBolt:
		return openBolt(chainDir)
	case BackendLevelDB:
		return openLevelDB(chainDir)
	default:
		return nil, errors.Errorf("unknown db backend %q", opts.Backend)
	}
}

// ReadBlock fetches and decodes a stored block by height.
func ReadBlock(s Store, height uint64) (*consensus.Block, bool, error) {
	hash, ok, err := s.GetHashByHeight(height)
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.GetBlock(hash)
}
