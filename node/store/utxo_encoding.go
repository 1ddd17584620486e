package store

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"quantumcoin.dev/node/consensus"
)

const outpointKeySize = 32 + 4

func encodeOutpointKey(p consensus.OutPoint) []byte {
	// txid(32) || vout(u32 little-endian)
	out := make([]byte, outpointKeySize)
	copy(out[0:32], p.TxID[:])
	binary.LittleEndian.PutUint32(out[32:36], p.Vout)
	return out
}

func decodeOutpointKey(b []byte) (consensus.OutPoint, error) {
	if len(b) != outpointKeySize {
		return consensus.OutPoint{}, errors.Errorf("outpoint: expected 36 bytes, got %d", len(b))
	}
	var p consensus.OutPoint
	copy(p.TxID[:], b[0:32])
	p.Vout = binary.LittleEndian.Uint32(b[32:36])
	return p, nil
}

// encodeUtxoEntry layout:
//
//	value u64le | kind u8 | pubkey_len CompactSize | pubkey | window u32le (kind 1) | height u64le | coinbase u8
func encodeUtxoEntry(e consensus.UtxoEntry) []byte {
	pk := e.Type.Pubkey
	out := make([]byte, 0, 8+1+9+len(pk)+4+8+1)
	out = binary.LittleEndian.AppendUint64(out, uint64(e.Value)) // #nosec G115 -- stored values are validated positive.
	out = append(out, byte(e.Type.Kind))
	out = consensus.AppendCompactSize(out, uint64(len(pk)))
	out = append(out, pk...)
	if e.Type.Kind == consensus.KindP2PQRevocable {
		out = binary.LittleEndian.AppendUint32(out, e.Type.WindowBlocks)
	}
	out = binary.LittleEndian.AppendUint64(out, e.Height)
	if e.Coinbase {
		return append(out, 1)
	}
	return append(out, 0)
}

func decodeUtxoEntry(b []byte) (consensus.UtxoEntry, error) {
	var e consensus.UtxoEntry
	if len(b) < 8+1+1+8+1 {
		return e, errors.New("utxo: truncated")
	}
	off := 0
	e.Value = int64(binary.LittleEndian.Uint64(b[off : off+8])) // #nosec G115 -- round-trips encodeUtxoEntry.
	off += 8
	e.Type.Kind = consensus.OutputKind(b[off])
	off++

	pkLen, n, err := consensus.DecodeCompactSize(b[off:])
	if err != nil {
		return e, errors.Wrap(err, "utxo: pubkey_len")
	}
	off += n
	tail := 8 + 1
	if e.Type.Kind == consensus.KindP2PQRevocable {
		tail += 4
	}
	if uint64(len(b)-off) != uint64(pkLen)+uint64(tail) {
		return e, errors.New("utxo: bad pubkey_len")
	}
	e.Type.Pubkey = append([]byte(nil), b[off:off+int(pkLen)]...)
	off += int(pkLen)
	if e.Type.Kind == consensus.KindP2PQRevocable {
		e.Type.WindowBlocks = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	e.Height = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	switch b[off] {
	case 0:
	case 1:
		e.Coinbase = true
	default:
		return e, errors.Errorf("utxo: coinbase flag %d", b[off])
	}
	return e, nil
}

func encodeHeightKey(h uint64) []byte {
	// Big-endian so keys sort by height.
	return binary.BigEndian.AppendUint64(nil, h)
}

// encodeTip layout: hash(32) || height u64le
func encodeTip(t Tip) []byte {
	out := make([]byte, 0, 40)
	out = append(out, t.Hash[:]...)
	return binary.LittleEndian.AppendUint64(out, t.Height)
}

func decodeTip(b []byte) (Tip, error) {
	var t Tip
	if len(b) != 40 {
		return t, errors.Errorf("tip: expected 40 bytes, got %d", len(b))
	}
	copy(t.Hash[:], b[:32])
	t.Height = binary.LittleEndian.Uint64(b[32:])
	return t, nil
}

func decodeHash(b []byte) (consensus.Hash32, error) {
	var h consensus.Hash32
	if len(b) != len(h) {
		return h, errors.Errorf("hash: expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}
