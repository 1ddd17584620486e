package consensus

// EncodingVersion identifies the byte layout produced by Tx.Bytes and
// BlockHeader.Bytes. Stores record it in their manifest.
const EncodingVersion = 1

type OutputKind uint8

const (
	KindP2PQ          OutputKind = 0
	KindP2PQRevocable OutputKind = 1
)

func (k OutputKind) String() string {
	switch k {
	case KindP2PQ:
		return "p2pq"
	case KindP2PQRevocable:
		return "p2pq_revocable"
	default:
		return "unknown"
	}
}

// OutputType is the locking condition of an output. WindowBlocks is only
// meaningful for KindP2PQRevocable.
type OutputType struct {
	Kind         OutputKind
	Pubkey       []byte
	WindowBlocks uint32
}

func P2PQ(pubkey []byte) OutputType {
	return OutputType{Kind: KindP2PQ, Pubkey: pubkey}
}

func P2PQRevocable(pubkey []byte, windowBlocks uint32) OutputType {
	return OutputType{Kind: KindP2PQRevocable, Pubkey: pubkey, WindowBlocks: windowBlocks}
}

func (t OutputType) Clone() OutputType {
	t.Pubkey = append([]byte(nil), t.Pubkey...)
	return t
}

type OutPoint struct {
	TxID Hash32
	Vout uint32
}

type TxIn struct {
	Prevout   OutPoint
	Signature []byte
	Cancel    bool
}

type TxOut struct {
	Value int64
	Type  OutputType
}

type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32
}

// IsCoinbase reports whether tx has no inputs. Only the first transaction of
// a block may have this shape.
func (tx *Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// TxID is the sighash: SHA-256 of the skeleton encoding, so it does not
// commit to signatures or cancel flags.
func (tx *Tx) TxID() Hash32 {
	return Sighash(tx)
}

// SumOutputs adds output values, failing on overflow or a non-positive value.
func (tx *Tx) SumOutputs() (int64, error) {
	var sum int64
	for i, out := range tx.Outputs {
		if out.Value <= 0 {
			return 0, txerrf(TX_ERR_VALUE_RANGE, "output %d value %d", i, out.Value)
		}
		next, err := addInt64(sum, out.Value)
		if err != nil {
			return 0, txerr(TX_ERR_VALUE_RANGE, "output sum overflow")
		}
		sum = next
	}
	return sum, nil
}

type BlockHeader struct {
	Version    uint32
	PrevBlock  Hash32
	MerkleRoot Hash32
	Time       uint64
	Bits       uint32
	Nonce      uint32
}

// BlockHeaderSize is the fixed encoded size of a header.
const BlockHeaderSize = 4 + 32 + 32 + 8 + 4 + 4

type Block struct {
	Header BlockHeader
	Txs    []Tx
}

// Hash is the double SHA-256 of the encoded header.
func (h *BlockHeader) Hash() Hash32 {
	return BlockHash(*h)
}

// UtxoEntry is an unspent output together with the facts needed to spend it.
type UtxoEntry struct {
	Value    int64
	Type     OutputType
	Height   uint64
	Coinbase bool
}
