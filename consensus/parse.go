package consensus

func parseTxIn(b []byte, off *int) (TxIn, error) {
	var in TxIn
	txid, err := readHash32(b, off)
	if err != nil {
		return in, err
	}
	vout, err := readU32le(b, off)
	if err != nil {
		return in, err
	}
	sigLen, err := readLen(b, off, "sig_len")
	if err != nil {
		return in, err
	}
	sig, err := readBytes(b, off, sigLen)
	if err != nil {
		return in, err
	}
	cancel, err := readU8(b, off)
	if err != nil {
		return in, err
	}
	if cancel > 1 {
		return in, txerrf(TX_ERR_PARSE, "cancel flag %d", cancel)
	}
	in.Prevout = OutPoint{TxID: txid, Vout: vout}
	if sigLen > 0 {
		in.Signature = append([]byte(nil), sig...)
	}
	in.Cancel = cancel == 1
	return in, nil
}

func parseTxOut(b []byte, off *int) (TxOut, error) {
	var out TxOut
	value, err := readU64le(b, off)
	if err != nil {
		return out, err
	}
	kind, err := readU8(b, off)
	if err != nil {
		return out, err
	}
	if OutputKind(kind) != KindP2PQ && OutputKind(kind) != KindP2PQRevocable {
		return out, txerrf(TX_ERR_PARSE, "unknown output kind %d", kind)
	}
	pkLen, err := readLen(b, off, "pubkey_len")
	if err != nil {
		return out, err
	}
	pk, err := readBytes(b, off, pkLen)
	if err != nil {
		return out, err
	}
	out.Value = int64(value) // #nosec G115 -- sign is checked by validation, not parsing.
	out.Type = OutputType{Kind: OutputKind(kind), Pubkey: append([]byte(nil), pk...)}
	if out.Type.Kind == KindP2PQRevocable {
		w, err := readU32le(b, off)
		if err != nil {
			return out, err
		}
		out.Type.WindowBlocks = w
	}
	return out, nil
}

func parseTxAt(b []byte, off *int) (*Tx, error) {
	version, err := readU32le(b, off)
	if err != nil {
		return nil, err
	}
	inCount, err := readLen(b, off, "input_count")
	if err != nil {
		return nil, err
	}
	tx := &Tx{Version: version}
	if inCount > 0 {
		tx.Inputs = make([]TxIn, 0, inCount)
	}
	for i := 0; i < inCount; i++ {
		in, err := parseTxIn(b, off)
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}
	outCount, err := readLen(b, off, "output_count")
	if err != nil {
		return nil, err
	}
	if outCount > 0 {
		tx.Outputs = make([]TxOut, 0, outCount)
	}
	for i := 0; i < outCount; i++ {
		out, err := parseTxOut(b, off)
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, out)
	}
	if tx.LockTime, err = readU32le(b, off); err != nil {
		return nil, err
	}
	return tx, nil
}

// ParseTx decodes one transaction from the front of b and returns the
// number of bytes consumed.
func ParseTx(b []byte) (*Tx, int, error) {
	off := 0
	tx, err := parseTxAt(b, &off)
	if err != nil {
		return nil, 0, err
	}
	return tx, off, nil
}

// ParseTxBytes decodes exactly one transaction; trailing bytes are an error.
func ParseTxBytes(b []byte) (*Tx, error) {
	tx, n, err := ParseTx(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, txerrf(TX_ERR_PARSE, "%d trailing bytes", len(b)-n)
	}
	return tx, nil
}

func ParseBlockHeaderBytes(b []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(b) != BlockHeaderSize {
		return h, txerrf(BLOCK_ERR_PARSE, "header length %d, want %d", len(b), BlockHeaderSize)
	}
	off := 0
	h.Version, _ = readU32le(b, &off)
	h.PrevBlock, _ = readHash32(b, &off)
	h.MerkleRoot, _ = readHash32(b, &off)
	h.Time, _ = readU64le(b, &off)
	h.Bits, _ = readU32le(b, &off)
	h.Nonce, _ = readU32le(b, &off)
	return h, nil
}

// ParseBlockBytes decodes a full block. Transaction-level parse failures
// are reported as BLOCK_ERR_PARSE.
func ParseBlockBytes(b []byte) (*Block, error) {
	if len(b) < BlockHeaderSize {
		return nil, txerr(BLOCK_ERR_PARSE, "short header")
	}
	header, err := ParseBlockHeaderBytes(b[:BlockHeaderSize])
	if err != nil {
		return nil, err
	}
	off := BlockHeaderSize
	count, err := readLen(b, &off, "tx_count")
	if err != nil {
		return nil, txerr(BLOCK_ERR_PARSE, err.Error())
	}
	blk := &Block{Header: header, Txs: make([]Tx, 0, count)}
	for i := 0; i < count; i++ {
		tx, err := parseTxAt(b, &off)
		if err != nil {
			return nil, txerrf(BLOCK_ERR_PARSE, "tx %d: %v", i, err)
		}
		blk.Txs = append(blk.Txs, *tx)
	}
	if off != len(b) {
		return nil, txerrf(BLOCK_ERR_PARSE, "%d trailing bytes", len(b)-off)
	}
	return blk, nil
}
