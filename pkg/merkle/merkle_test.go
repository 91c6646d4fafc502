package merkle

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// createTestLeaves creates n random leaf digests
func createTestLeaves(n int) []types.LeafDigest {
	leaves := make([]types.LeafDigest, n)
	for i := range leaves {
		_, _ = rand.Read(leaves[i][:])
	}
	return leaves
}

// TestBuildMerkleTree tests tree construction and round-trip proofs for various sizes
func TestBuildMerkleTree(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
	}{
		{"Single leaf", 1},
		{"Two leaves", 2},
		{"Three leaves", 3},
		{"Four leaves (power of 2)", 4},
		{"Five leaves", 5},
		{"Six leaves", 6},
		{"Seven leaves", 7},
		{"Eight leaves (power of 2)", 8},
		{"Fifteen leaves", 15},
		{"Sixteen leaves (power of 2)", 16},
		{"Seventeen leaves", 17},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := createTestLeaves(tc.numLeaves)
			tree, err := BuildMerkleTree(leaves)
			require.NoError(t, err)
			require.NotNil(t, tree)
			require.Equal(t, tc.numLeaves, len(tree.Leaves))

			for i, leaf := range leaves {
				proof, err := tree.GenerateProof(leaf)
				require.NoError(t, err)
				require.Equal(t, i, proof.LeafIndex)
				require.Equal(t, leaf, proof.Leaf)
				require.True(t, VerifyProof(leaf, proof.Path, tree.Root), "Proof for leaf %d should be valid", i)
				require.True(t, proof.Verify(tree.Root))
			}
		})
	}
}

func TestBuildMerkleTreeEmpty(t *testing.T) {
	tree, err := BuildMerkleTree(nil)
	require.ErrorIs(t, err, ErrEmptyCatalogue)
	require.Nil(t, tree)
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	leaves := createTestLeaves(1)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	require.Equal(t, leaves[0], tree.Root)

	proof, err := tree.GenerateProof(leaves[0])
	require.NoError(t, err)
	require.Empty(t, proof.Path)
	require.True(t, proof.Verify(tree.Root))
}

// TestOddNodePromotion checks the six-leaf shape: levels of 6, 3, 2, 1 nodes where
// the third node of level one is carried up without being hashed with itself.
func TestOddNodePromotion(t *testing.T) {
	l := createTestLeaves(6)
	tree, err := BuildMerkleTree(l)
	require.NoError(t, err)

	require.Equal(t, 3, tree.Depth())
	require.Len(t, tree.levels[1], 3)
	require.Len(t, tree.levels[2], 2)

	h01 := hashPair(l[0], l[1])
	h23 := hashPair(l[2], l[3])
	h45 := hashPair(l[4], l[5])
	require.Equal(t, h45, tree.levels[2][1], "unpaired node must be promoted unchanged")

	expected := hashPair(hashPair(h01, h23), h45)
	require.Equal(t, expected, tree.Root)

	duplicated := hashPair(hashPair(h01, h23), hashPair(h45, h45))
	require.NotEqual(t, duplicated, tree.Root)

	// Leaf 4 pairs with leaf 5, is promoted at level 1, then pairs on the right of h0123
	proof, err := tree.GenerateProof(l[4])
	require.NoError(t, err)
	require.Equal(t, []types.ProofNode{
		{Hash: l[5], Position: types.Right},
		{Hash: hashPair(h01, h23), Position: types.Left},
	}, proof.Path)
}

func TestMerkleProofVerification(t *testing.T) {
	leaves := createTestLeaves(7)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	t.Run("Valid proof", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)
		require.True(t, proof.Verify(tree.Root))
	})

	t.Run("Invalid proof - wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)
		require.False(t, proof.Verify(types.LeafDigest{1, 2, 3, 4, 5}))
	})

	t.Run("Invalid proof - nil proof", func(t *testing.T) {
		var proof *MerkleProof
		require.False(t, proof.Verify(tree.Root))
	})

	t.Run("Invalid proof - truncated path", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[2])
		require.NoError(t, err)
		require.False(t, VerifyProof(proof.Leaf, proof.Path[:len(proof.Path)-1], tree.Root))
	})

	t.Run("Invalid proof - extra entry", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[2])
		require.NoError(t, err)
		path := append(proof.Path, types.ProofNode{Hash: leaves[0], Position: types.Right})
		require.False(t, VerifyProof(proof.Leaf, path, tree.Root))
	})

	t.Run("Invalid proof - unknown position", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[2])
		require.NoError(t, err)
		proof.Path[0].Position = types.Position(7)
		require.False(t, proof.Verify(tree.Root))
	})

	t.Run("Invalid proof - proof of another leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[1])
		require.NoError(t, err)
		require.False(t, VerifyProof(leaves[3], proof.Path, tree.Root))
	})
}

// TestTamperSensitivity flips every bit of the leaf and every proof entry, and swaps each position tag
func TestTamperSensitivity(t *testing.T) {
	leaves := createTestLeaves(11)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	for i, leaf := range leaves {
		proof, err := tree.GenerateProof(leaf)
		require.NoError(t, err)

		for bit := 0; bit < 256; bit++ {
			tampered := leaf
			tampered[bit/8] ^= 1 << (bit % 8)
			require.False(t, VerifyProof(tampered, proof.Path, tree.Root), "leaf %d bit %d", i, bit)
		}

		for j := range proof.Path {
			for bit := 0; bit < 256; bit++ {
				path := append([]types.ProofNode(nil), proof.Path...)
				path[j].Hash[bit/8] ^= 1 << (bit % 8)
				require.False(t, VerifyProof(leaf, path, tree.Root), "leaf %d entry %d bit %d", i, j, bit)
			}

			path := append([]types.ProofNode(nil), proof.Path...)
			if path[j].Position == types.Left {
				path[j].Position = types.Right
			} else {
				path[j].Position = types.Left
			}
			require.False(t, VerifyProof(leaf, path, tree.Root), "leaf %d entry %d position swap", i, j)
		}
	}
}

func TestGenerateProofLeafNotFound(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(4))
	require.NoError(t, err)

	proof, err := tree.GenerateProof(types.LeafDigest{0xde, 0xad})
	require.ErrorIs(t, err, ErrLeafNotFound)
	require.Nil(t, proof)
}

func TestGenerateProofInvalidIndex(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(4))
	require.NoError(t, err)

	t.Run("Negative index", func(t *testing.T) {
		proof, err := tree.GenerateProofAtIndex(-1)
		require.Error(t, err)
		require.Nil(t, proof)
	})

	t.Run("Index out of bounds", func(t *testing.T) {
		proof, err := tree.GenerateProofAtIndex(10)
		require.Error(t, err)
		require.Nil(t, proof)
	})
}

func TestMerkleTreeDeterminism(t *testing.T) {
	leaves := createTestLeaves(10)

	tree1, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	tree2, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	require.Equal(t, tree1.Root, tree2.Root)
	require.Equal(t, tree1.Leaves, tree2.Leaves)
}

// TestMerkleTreeOrderMatters checks that catalogue order is committed into the root
func TestMerkleTreeOrderMatters(t *testing.T) {
	leaves := createTestLeaves(4)
	tree1, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	reversed := []types.LeafDigest{leaves[3], leaves[2], leaves[1], leaves[0]}
	tree2, err := BuildMerkleTree(reversed)
	require.NoError(t, err)

	require.NotEqual(t, tree1.Root, tree2.Root)
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	leaves := createTestLeaves(3)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	root := tree.Root

	leaves[0][0] ^= 0xFF
	require.NotEqual(t, leaves[0], tree.Leaves[0])
	require.Equal(t, root, tree.Root)
}

// TestMerkleProofLength tests that proof length is logarithmic
func TestMerkleProofLength(t *testing.T) {
	testCases := []struct {
		numLeaves     int
		maxProofDepth int
	}{
		{1, 0},
		{2, 1},
		{4, 2},
		{6, 3},
		{8, 3},
		{16, 4},
		{100, 7},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d_leaves", tc.numLeaves), func(t *testing.T) {
			leaves := createTestLeaves(tc.numLeaves)
			tree, err := BuildMerkleTree(leaves)
			require.NoError(t, err)

			for i := range leaves {
				proof, err := tree.GenerateProofAtIndex(i)
				require.NoError(t, err)
				require.LessOrEqual(t, len(proof.Path), tc.maxProofDepth)
			}
		})
	}
}

func TestMerkleTreeLargeSet(t *testing.T) {
	for _, size := range []int{50, 100, 333} {
		t.Run(fmt.Sprintf("Size_%d", size), func(t *testing.T) {
			leaves := createTestLeaves(size)
			tree, err := BuildMerkleTree(leaves)
			require.NoError(t, err)

			for _, idx := range []int{0, size / 4, size / 2, size - 1} {
				proof, err := tree.GenerateProofAtIndex(idx)
				require.NoError(t, err)
				require.True(t, proof.Verify(tree.Root))
			}
		})
	}
}
