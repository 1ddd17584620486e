package consensus

import "quantumcoin.dev/node/crypto"

// Sighash is the message every input signs. It covers the whole transaction
// except signatures and cancel flags, so one digest serves all inputs.
func Sighash(tx *Tx) Hash32 {
	return Hash32(crypto.TxSighash(tx.SkeletonBytes()))
}

// MerkleLeaf commits to the full encoding, signatures included.
func MerkleLeaf(tx *Tx) Hash32 {
	return sha256Hash(tx.Bytes())
}

// BlockHash returns SHA-256d over the 84-byte header.
func BlockHash(header BlockHeader) Hash32 {
	return Hash32(crypto.DoubleHash(BlockHeaderBytes(header)))
}
