package consensus

// Canonical encoding, version 1 (all integers little-endian):
//
//	TxIn:   prev_txid[32] | vout u32 | sig_len CompactSize | sig | cancel u8
//	TxOut:  value i64 | kind u8 | pubkey_len CompactSize | pubkey | window u32 (kind 1 only)
//	Tx:     version u32 | vin_count CompactSize | TxIn... | vout_count CompactSize | TxOut... | lock_time u32
//	Header: version u32 | prev[32] | merkle[32] | time u64 | bits u32 | nonce u32
//	Block:  Header | tx_count CompactSize | Tx...

func BlockHeaderBytes(header BlockHeader) []byte {
	out := make([]byte, 0, BlockHeaderSize)
	out = appendU32le(out, header.Version)
	out = append(out, header.PrevBlock[:]...)
	out = append(out, header.MerkleRoot[:]...)
	out = appendU64le(out, header.Time)
	out = appendU32le(out, header.Bits)
	out = appendU32le(out, header.Nonce)
	return out
}

func appendTxOut(dst []byte, o TxOut) []byte {
	dst = appendU64le(dst, uint64(o.Value))
	dst = append(dst, byte(o.Type.Kind))
	dst = AppendCompactSize(dst, uint64(len(o.Type.Pubkey)))
	dst = append(dst, o.Type.Pubkey...)
	if o.Type.Kind == KindP2PQRevocable {
		dst = appendU32le(dst, o.Type.WindowBlocks)
	}
	return dst
}

func appendTxIn(dst []byte, in TxIn, skeleton bool) []byte {
	dst = append(dst, in.Prevout.TxID[:]...)
	dst = appendU32le(dst, in.Prevout.Vout)
	if skeleton {
		dst = AppendCompactSize(dst, 0)
		return append(dst, 0)
	}
	dst = AppendCompactSize(dst, uint64(len(in.Signature)))
	dst = append(dst, in.Signature...)
	if in.Cancel {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendTx(dst []byte, tx *Tx, skeleton bool) []byte {
	dst = appendU32le(dst, tx.Version)
	dst = AppendCompactSize(dst, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		dst = appendTxIn(dst, in, skeleton)
	}
	dst = AppendCompactSize(dst, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		dst = appendTxOut(dst, out)
	}
	return appendU32le(dst, tx.LockTime)
}

// Bytes returns the full canonical encoding of tx.
func (tx *Tx) Bytes() []byte {
	return appendTx(make([]byte, 0, tx.SerializeSize()), tx, false)
}

// SkeletonBytes returns the encoding of tx with every signature emptied and
// every cancel flag cleared.
func (tx *Tx) SkeletonBytes() []byte {
	return appendTx(nil, tx, true)
}

// SerializeSize is len(tx.Bytes()) without allocating.
func (tx *Tx) SerializeSize() int {
	n := 4 + compactSizeLen(uint64(len(tx.Inputs))) + compactSizeLen(uint64(len(tx.Outputs))) + 4
	for _, in := range tx.Inputs {
		n += 32 + 4 + compactSizeLen(uint64(len(in.Signature))) + len(in.Signature) + 1
	}
	for _, out := range tx.Outputs {
		n += 8 + 1 + compactSizeLen(uint64(len(out.Type.Pubkey))) + len(out.Type.Pubkey)
		if out.Type.Kind == KindP2PQRevocable {
			n += 4
		}
	}
	return n
}

func (b *Block) Bytes() []byte {
	out := BlockHeaderBytes(b.Header)
	out = AppendCompactSize(out, uint64(len(b.Txs)))
	for i := range b.Txs {
		out = appendTx(out, &b.Txs[i], false)
	}
	return out
}
