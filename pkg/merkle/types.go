package merkle

import "github.com/Layr-Labs/landsale-go/pkg/types"

// MerkleTree is a binary keccak256 tree over catalogue leaves.
// It is immutable once built and safe for concurrent reads.
type MerkleTree struct {
	// Leaves contains the leaf digests in catalogue order
	Leaves []types.LeafDigest

	// Root is the merkle root hash
	Root types.LeafDigest

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][]types.LeafDigest

	// index maps a leaf digest to its first position in Leaves
	index map[types.LeafDigest]int
}

// MerkleProof is the sibling path from one leaf to the root.
// Levels where the node was promoted without a sibling contribute no entry.
type MerkleProof struct {
	// LeafIndex is the index of the leaf in catalogue order
	LeafIndex int `json:"leafIndex"`

	// Leaf is the hash of the leaf being proven
	Leaf types.LeafDigest `json:"leaf"`

	// Path[0] is nearest the leaf, Path[len-1] nearest the root
	Path []types.ProofNode `json:"proof"`
}
