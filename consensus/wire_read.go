package consensus

import "encoding/binary"

func readU8(b []byte, off *int) (uint8, error) {
	if *off+1 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u8)")
	}
	v := b[*off]
	*off++
	return v, nil
}

func readU32le(b []byte, off *int) (uint32, error) {
	if *off+4 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u32le)")
	}
	v := binary.LittleEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v, nil
}

func readU64le(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u64le)")
	}
	v := binary.LittleEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v, nil
}

func readBytes(b []byte, off *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, txerr(TX_ERR_PARSE, "negative length")
	}
	if *off+n > len(b) {
		return nil, txerr(TX_ERR_PARSE, "unexpected EOF (bytes)")
	}
	v := b[*off : *off+n]
	*off += n
	return v, nil
}

func readHash32(b []byte, off *int) (Hash32, error) {
	var h Hash32
	raw, err := readBytes(b, off, 32)
	if err != nil {
		return h, err
	}
	copy(h[:], raw)
	return h, nil
}

// readCompactSize decodes a CompactSize at *off. Non-minimal encodings are
// rejected with TX_ERR_PARSE.
func readCompactSize(b []byte, off *int) (uint64, int, error) {
	if *off > len(b) {
		return 0, 0, txerr(TX_ERR_PARSE, "unexpected EOF (compactsize)")
	}
	v, n, err := DecodeCompactSize(b[*off:])
	if err != nil {
		return 0, 0, txerr(TX_ERR_PARSE, err.Error())
	}
	*off += n
	return uint64(v), n, nil
}

// readLen reads a CompactSize length and checks it against the bytes left,
// so a hostile length cannot trigger a large allocation.
func readLen(b []byte, off *int, name string) (int, error) {
	v, _, err := readCompactSize(b, off)
	if err != nil {
		return 0, err
	}
	n, err := toIntLen(v, name)
	if err != nil {
		return 0, txerr(TX_ERR_PARSE, err.Error())
	}
	if n > len(b)-*off {
		return 0, txerrf(TX_ERR_PARSE, "%s %d exceeds remaining bytes", name, n)
	}
	return n, nil
}
