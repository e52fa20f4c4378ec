package armor

import (
	"bytes"
	"crypto/sha256"
	"errors"
)

var (
	ErrMerkleEmpty      = errors.New("armor: no shard hashes provided")
	ErrMerkleProofFail  = errors.New("armor: merkle proof verification failed")
	ErrMerkleIndexRange = errors.New("armor: shard index out of range")
)

// HashSize is the size of every tree node.
const HashSize = sha256.Size

// Tree is a Merkle tree over shard hashes, stored as a complete binary tree
// in an array.
type Tree struct {
	leaves [][]byte
	nodes  [][]byte
}

// HashShard hashes one shard's bytes into a leaf.
func HashShard(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func hashPair(left, right []byte) []byte {
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	h := sha256.Sum256(combined)
	return h[:]
}

// BuildTree constructs a tree from leaf hashes, padding to a power of two
// with the hash of the empty string.
func BuildTree(hashes [][]byte) (*Tree, error) {
	if len(hashes) == 0 {
		return nil, ErrMerkleEmpty
	}

	n := 1
	for n < len(hashes) {
		n *= 2
	}
	leaves := make([][]byte, n)
	empty := HashShard(nil)
	for i := range leaves {
		if i < len(hashes) {
			leaves[i] = hashes[i]
		} else {
			leaves[i] = empty
		}
	}

	// Leaves occupy nodes[n-1 : 2n-1].
	nodes := make([][]byte, 2*n-1)
	for i, leaf := range leaves {
		nodes[n-1+i] = leaf
	}
	for i := n - 2; i >= 0; i-- {
		nodes[i] = hashPair(nodes[2*i+1], nodes[2*i+2])
	}

	return &Tree{leaves: leaves, nodes: nodes}, nil
}

// Root returns the Merkle root.
func (t *Tree) Root() []byte { return t.nodes[0] }

// Proof is the sibling path from one leaf to the root.
type Proof struct {
	Index    int
	Leaf     []byte
	Siblings [][]byte // leaf to root
}

// GenerateProof returns the proof for the leaf at index.
func (t *Tree) GenerateProof(index int) (Proof, error) {
	n := len(t.leaves)
	if index < 0 || index >= n {
		return Proof{}, ErrMerkleIndexRange
	}

	var siblings [][]byte
	for idx := n - 1 + index; idx > 0; idx = (idx - 1) / 2 {
		if idx%2 == 1 {
			siblings = append(siblings, t.nodes[idx+1])
		} else {
			siblings = append(siblings, t.nodes[idx-1])
		}
	}
	return Proof{Index: index, Leaf: t.leaves[index], Siblings: siblings}, nil
}

// VerifyProof checks proof against root. The sibling side at each level is
// taken from the bits of proof.Index.
func VerifyProof(proof Proof, root []byte) error {
	if proof.Index < 0 || proof.Index >= 1<<len(proof.Siblings) {
		return ErrMerkleIndexRange
	}
	current := proof.Leaf
	for level, sibling := range proof.Siblings {
		if (proof.Index>>level)&1 == 1 {
			current = hashPair(sibling, current)
		} else {
			current = hashPair(current, sibling)
		}
	}
	if !bytes.Equal(current, root) {
		return ErrMerkleProofFail
	}
	return nil
}
