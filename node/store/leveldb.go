package store

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"quantumcoin.dev/node/consensus"
)

// Key prefixes in the single leveldb keyspace.
const (
	prefixUtxo   byte = 'u'
	prefixBlock  byte = 'b'
	prefixHeight byte = 'h'
	prefixMeta   byte = 'm'
)

// LevelDB stores everything in one goleveldb database. A Commit is one
// synced WriteBatch.
type LevelDB struct {
	db *leveldb.DB
}

func openLevelDB(chainDir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(filepath.Join(chainDir, "db", "leveldb"), nil)
	if err != nil {
		return nil, storageErr("open", err)
	}
	return &LevelDB{db: db}, nil
}

func prefixed(p byte, k []byte) []byte {
	out := make([]byte, 0, 1+len(k))
	out = append(out, p)
	return append(out, k...)
}

func (d *LevelDB) Backend() string { return BackendLevelDB }

func (d *LevelDB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *LevelDB) get(key []byte) ([]byte, bool, error) {
	v, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *LevelDB) GetUTXO(op consensus.OutPoint) (consensus.UtxoEntry, bool, error) {
	v, ok, err := d.get(prefixed(prefixUtxo, encodeOutpointKey(op)))
	if err != nil {
		return consensus.UtxoEntry{}, false, storageErr("get utxo", err)
	}
	if !ok {
		return consensus.UtxoEntry{}, false, nil
	}
	e, err := decodeUtxoEntry(v)
	if err != nil {
		return consensus.UtxoEntry{}, false, storageErr("get utxo", err)
	}
	return e, true, nil
}

func (d *LevelDB) ForEachUTXO(fn func(consensus.OutPoint, consensus.UtxoEntry) error) error {
	// A snapshot keeps the scan consistent while commits continue.
	snap, err := d.db.GetSnapshot()
	if err != nil {
		return storageErr("scan utxo", err)
	}
	defer snap.Release()

	it := snap.NewIterator(util.BytesPrefix([]byte{prefixUtxo}), nil)
	defer it.Release()
	for it.Next() {
		op, err := decodeOutpointKey(it.Key()[1:])
		if err != nil {
			return storageErr("scan utxo", err)
		}
		e, err := decodeUtxoEntry(it.Value())
		if err != nil {
			return storageErr("scan utxo", err)
		}
		if err := fn(op, e); err != nil {
			return err
		}
	}
	return storageErr("scan utxo", it.Error())
}

func (d *LevelDB) GetTip() (Tip, bool, error) {
	v, ok, err := d.get(prefixed(prefixMeta, keyTip))
	if err != nil {
		return Tip{}, false, storageErr("get tip", err)
	}
	if !ok {
		return Tip{}, false, nil
	}
	t, err := decodeTip(v)
	if err != nil {
		return Tip{}, false, storageErr("get tip", err)
	}
	return t, true, nil
}

func (d *LevelDB) GetBlock(hash consensus.Hash32) (*consensus.Block, bool, error) {
	v, ok, err := d.get(prefixed(prefixBlock, hash[:]))
	if err != nil {
		return nil, false, storageErr("get block", err)
	}
	if !ok {
		return nil, false, nil
	}
	blk, err := consensus.ParseBlockBytes(v)
	if err != nil {
		return nil, false, storageErr("get block", err)
	}
	return blk, true, nil
}

func (d *LevelDB) GetHashByHeight(height uint64) (consensus.Hash32, bool, error) {
	v, ok, err := d.get(prefixed(prefixHeight, encodeHeightKey(height)))
	if err != nil {
		return consensus.Hash32{}, false, storageErr("get height", err)
	}
	if !ok {
		return consensus.Hash32{}, false, nil
	}
	h, err := decodeHash(v)
	if err != nil {
		return consensus.Hash32{}, false, storageErr("get height", err)
	}
	return h, true, nil
}

func (d *LevelDB) Commit(b *Batch) error {
	wb := new(leveldb.Batch)
	for _, op := range b.spent {
		wb.Delete(prefixed(prefixUtxo, encodeOutpointKey(op)))
	}
	for _, c := range b.created {
		wb.Put(prefixed(prefixUtxo, encodeOutpointKey(c.OutPoint)), encodeUtxoEntry(c.Entry))
	}
	for _, r := range b.blocks {
		wb.Put(prefixed(prefixBlock, r.hash[:]), r.raw)
		wb.Put(prefixed(prefixHeight, encodeHeightKey(r.height)), r.hash[:])
	}
	if b.tip != nil {
		wb.Put(prefixed(prefixMeta, keyTip), encodeTip(*b.tip))
	}
	return storageErr("commit", d.db.Write(wb, &opt.WriteOptions{Sync: true}))
}
