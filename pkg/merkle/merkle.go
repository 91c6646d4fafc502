package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

var (
	// ErrEmptyCatalogue is returned when no leaves are supplied
	ErrEmptyCatalogue = errors.New("cannot build merkle tree from empty catalogue")

	// ErrLeafNotFound is returned when a proof is requested for a leaf outside the tree
	ErrLeafNotFound = errors.New("leaf not found in catalogue")
)

// BuildMerkleTree creates a binary merkle tree from leaf digests in the given order.
//
// Pairs are hashed left to right as keccak256(left || right).
// If a level has an odd number of nodes, the last node is promoted to the next level unchanged.
func BuildMerkleTree(leaves []types.LeafDigest) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyCatalogue
	}

	leafLevel := make([]types.LeafDigest, len(leaves))
	copy(leafLevel, leaves)

	index := make(map[types.LeafDigest]int, len(leafLevel))
	for i, leaf := range leafLevel {
		if _, exists := index[leaf]; !exists {
			index[leaf] = i
		}
	}

	// Build tree levels bottom-up
	levels := make([][]types.LeafDigest, 0)
	levels = append(levels, leafLevel)

	currentLevel := leafLevel
	for len(currentLevel) > 1 {
		nextLevel := make([]types.LeafDigest, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 < len(currentLevel) {
				nextLevel = append(nextLevel, hashPair(currentLevel[i], currentLevel[i+1]))
			} else {
				nextLevel = append(nextLevel, currentLevel[i])
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: leafLevel,
		Root:   currentLevel[0],
		levels: levels,
		index:  index,
	}, nil
}

// Depth returns the number of levels above the leaves
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// IndexOf returns the catalogue position of leaf
func (mt *MerkleTree) IndexOf(leaf types.LeafDigest) (int, bool) {
	i, ok := mt.index[leaf]
	return i, ok
}

// GenerateProof creates a merkle proof for the given leaf digest.
// Returns ErrLeafNotFound before any hashing if the leaf is not in the tree.
func (mt *MerkleTree) GenerateProof(leaf types.LeafDigest) (*MerkleProof, error) {
	leafIndex, ok := mt.index[leaf]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeafNotFound, leaf.Hex())
	}
	return mt.GenerateProofAtIndex(leafIndex)
}

// GenerateProofAtIndex creates a merkle proof for the leaf at the given catalogue index.
func (mt *MerkleTree) GenerateProofAtIndex(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= len(mt.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(mt.Leaves))
	}

	path := make([]types.ProofNode, 0, mt.Depth())
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		if index%2 == 1 {
			path = append(path, types.ProofNode{Hash: currentLevel[index-1], Position: types.Left})
		} else if index+1 < len(currentLevel) {
			path = append(path, types.ProofNode{Hash: currentLevel[index+1], Position: types.Right})
		}
		// otherwise the node is promoted and this level has no sibling

		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex],
		Path:      path,
	}, nil
}

// VerifyProof recomputes the root from leaf and path and compares it to root.
// Any malformed path simply fails the comparison.
func VerifyProof(leaf types.LeafDigest, path []types.ProofNode, root types.LeafDigest) bool {
	current := leaf
	for _, node := range path {
		switch node.Position {
		case types.Right:
			current = hashPair(current, node.Hash)
		case types.Left:
			current = hashPair(node.Hash, current)
		default:
			return false
		}
	}
	return current == root
}

// Verify checks the proof against root
func (p *MerkleProof) Verify(root types.LeafDigest) bool {
	if p == nil {
		return false
	}
	return VerifyProof(p.Leaf, p.Path, root)
}

// hashPair computes keccak256(left || right) for two 32-byte hashes.
func hashPair(left, right types.LeafDigest) types.LeafDigest {
	data := make([]byte, 64)
	copy(data[0:32], left[:])
	copy(data[32:64], right[:])

	return crypto.Keccak256Hash(data)
}
