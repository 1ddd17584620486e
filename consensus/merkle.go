package consensus

// MerkleRoot computes the root over the full encodings of txs. An odd level
// duplicates its last node. An empty list yields the zero hash.
func MerkleRoot(txs []Tx) Hash32 {
	leaves := make([]Hash32, len(txs))
	for i := range txs {
		leaves[i] = MerkleLeaf(&txs[i])
	}
	return MerkleRootHashes(leaves)
}

func MerkleRootHashes(leaves []Hash32) Hash32 {
	if len(leaves) == 0 {
		return ZeroHash
	}
	level := append([]Hash32(nil), leaves...)
	for len(level) > 1 {
		level = nextMerkleLevel(level)
	}
	return level[0]
}

func nextMerkleLevel(level []Hash32) []Hash32 {
	next := make([]Hash32, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		right := level[i]
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, pairHash(level[i], right))
	}
	return next
}

// MerkleTree keeps every level so proofs can be produced without rehashing.
type MerkleTree struct {
	levels [][]Hash32
}

func NewMerkleTree(leaves []Hash32) *MerkleTree {
	t := &MerkleTree{}
	if len(leaves) == 0 {
		return t
	}
	level := append([]Hash32(nil), leaves...)
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		level = nextMerkleLevel(level)
		t.levels = append(t.levels, level)
	}
	return t
}

func (t *MerkleTree) Root() Hash32 {
	if len(t.levels) == 0 {
		return ZeroHash
	}
	return t.levels[len(t.levels)-1][0]
}

// Proof returns the sibling path from leaf index to the root, bottom-up.
func (t *MerkleTree) Proof(index int) ([]Hash32, bool) {
	if len(t.levels) == 0 || index < 0 || index >= len(t.levels[0]) {
		return nil, false
	}
	proof := make([]Hash32, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		proof = append(proof, level[sibling])
		index /= 2
	}
	return proof, true
}

// ProofFor locates leaf and returns its proof and index. It reports false
// when leaf is not in the tree.
func (t *MerkleTree) ProofFor(leaf Hash32) ([]Hash32, int, bool) {
	if len(t.levels) == 0 {
		return nil, 0, false
	}
	for i, h := range t.levels[0] {
		if h == leaf {
			proof, _ := t.Proof(i)
			return proof, i, true
		}
	}
	return nil, 0, false
}

// VerifyMerkleProof folds proof into leaf using index to pick the side at
// each level and compares the result with root.
func VerifyMerkleProof(leaf Hash32, proof []Hash32, index int, root Hash32) bool {
	if index < 0 {
		return false
	}
	cur := leaf
	for _, sibling := range proof {
		if index&1 == 0 {
			cur = pairHash(cur, sibling)
		} else {
			cur = pairHash(sibling, cur)
		}
		index >>= 1
	}
	return index == 0 && cur == root
}
