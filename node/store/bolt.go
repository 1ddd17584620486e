package store

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"quantumcoin.dev/node/consensus"
)

var (
	bucketUtxo     = []byte("utxo_by_outpoint")
	bucketBlocks   = []byte("blocks_by_hash")
	bucketHeights  = []byte("hash_by_height")
	bucketMeta     = []byte("meta")
	keyTip         = []byte("tip")
	allBoltBuckets = [][]byte{bucketUtxo, bucketBlocks, bucketHeights, bucketMeta}
)

// BoltDB stores everything in one bbolt file. A Commit is a single
// read-write transaction, so readers see either all of a block or none.
type BoltDB struct {
	db *bolt.DB
}

func openBolt(chainDir string) (*BoltDB, error) {
	dir := filepath.Join(chainDir, "db")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	bdb, err := bolt.Open(filepath.Join(dir, "kv.db"), 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range allBoltBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "create bucket %s", string(b))
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, storageErr("open", err)
	}
	return &BoltDB{db: bdb}, nil
}

func (d *BoltDB) Backend() string { return BackendBolt }

func (d *BoltDB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *BoltDB) GetUTXO(op consensus.OutPoint) (consensus.UtxoEntry, bool, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUtxo).Get(encodeOutpointKey(op))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return consensus.UtxoEntry{}, false, storageErr("get utxo", err)
	}
	if out == nil {
		return consensus.UtxoEntry{}, false, nil
	}
	e, err := decodeUtxoEntry(out)
	if err != nil {
		return consensus.UtxoEntry{}, false, storageErr("get utxo", err)
	}
	return e, true, nil
}

func (d *BoltDB) ForEachUTXO(fn func(consensus.OutPoint, consensus.UtxoEntry) error) error {
	return d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUtxo).ForEach(func(k, v []byte) error {
			op, err := decodeOutpointKey(k)
			if err != nil {
				return storageErr("scan utxo", err)
			}
			e, err := decodeUtxoEntry(v)
			if err != nil {
				return storageErr("scan utxo", err)
			}
			return fn(op, e)
		})
	})
}

func (d *BoltDB) GetTip() (Tip, bool, error) {
	var raw []byte
	if err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyTip); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Tip{}, false, storageErr("get tip", err)
	}
	if raw == nil {
		return Tip{}, false, nil
	}
	t, err := decodeTip(raw)
	if err != nil {
		return Tip{}, false, storageErr("get tip", err)
	}
	return t, true, nil
}

func (d *BoltDB) GetBlock(hash consensus.Hash32) (*consensus.Block, bool, error) {
	var raw []byte
	if err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketBlocks).Get(hash[:]); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, false, storageErr("get block", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	blk, err := consensus.ParseBlockBytes(raw)
	if err != nil {
		return nil, false, storageErr("get block", err)
	}
	return blk, true, nil
}

func (d *BoltDB) GetHashByHeight(height uint64) (consensus.Hash32, bool, error) {
	var raw []byte
	if err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketHeights).Get(encodeHeightKey(height)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return consensus.Hash32{}, false, storageErr("get height", err)
	}
	if raw == nil {
		return consensus.Hash32{}, false, nil
	}
	h, err := decodeHash(raw)
	if err != nil {
		return consensus.Hash32{}, false, storageErr("get height", err)
	}
	return h, true, nil
}

// Commit applies b in one bbolt transaction: UTXO deletes, UTXO inserts,
// block archive, height index, tip.
func (d *BoltDB) Commit(b *Batch) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		utxos := tx.Bucket(bucketUtxo)
		for _, op := range b.spent {
			if err := utxos.Delete(encodeOutpointKey(op)); err != nil {
				return errors.Wrap(err, "delete utxo")
			}
		}
		for _, c := range b.created {
			if err := utxos.Put(encodeOutpointKey(c.OutPoint), encodeUtxoEntry(c.Entry)); err != nil {
				return errors.Wrap(err, "put utxo")
			}
		}
		blocks, heights := tx.Bucket(bucketBlocks), tx.Bucket(bucketHeights)
		for _, r := range b.blocks {
			if err := blocks.Put(r.hash[:], r.raw); err != nil {
				return errors.Wrap(err, "put block")
			}
			if err := heights.Put(encodeHeightKey(r.height), r.hash[:]); err != nil {
				return errors.Wrap(err, "put height")
			}
		}
		if b.tip != nil {
			if err := tx.Bucket(bucketMeta).Put(keyTip, encodeTip(*b.tip)); err != nil {
				return errors.Wrap(err, "put tip")
			}
		}
		return nil
	})
	return storageErr("commit", err)
}
