package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(b byte) []byte {
	h := sha256.Sum256([]byte{b})
	return h[:]
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	in := input(1)
	tree, err := BuildTree([][]byte{in})
	require.NoError(t, err)

	assert.Equal(t, HashData(in), tree.Root())
	assert.Equal(t, 1, tree.LeafCount())
}

func TestBuildTree_OddCountDuplicatesLast(t *testing.T) {
	ins := [][]byte{input(1), input(2), input(3)}
	tree, err := BuildTree(ins)
	require.NoError(t, err)
	require.Equal(t, 3, tree.LeafCount())

	for i, in := range ins {
		proof, err := tree.GenerateProofByInput(in)
		require.NoErrorf(t, err, "input %d", i)
		ok, err := VerifyProof(in, proof, tree.Root())
		require.NoErrorf(t, err, "input %d", i)
		assert.Truef(t, ok, "input %d: proof did not verify", i)
	}
}

func TestBuildTree_IsOrderIndependent(t *testing.T) {
	a := [][]byte{input(1), input(2), input(3), input(4)}
	b := [][]byte{input(4), input(2), input(1), input(3)}

	treeA, err := BuildTree(a)
	require.NoError(t, err)
	treeB, err := BuildTree(b)
	require.NoError(t, err)

	assert.Equal(t, treeA.Root(), treeB.Root(), "roots should not differ by submission order")
}

func TestBuildTree_ProofRoundTripForAllSizes(t *testing.T) {
	for n := 1; n <= 9; n++ {
		ins := make([][]byte, n)
		for i := 0; i < n; i++ {
			ins[i] = input(byte(i))
		}
		tree, err := BuildTree(ins)
		require.NoErrorf(t, err, "n=%d", n)
		for i := 0; i < n; i++ {
			proof, err := tree.GenerateProofByInput(ins[i])
			require.NoErrorf(t, err, "n=%d i=%d", n, i)
			ok, err := VerifyProof(ins[i], proof, tree.Root())
			require.NoErrorf(t, err, "n=%d i=%d", n, i)
			assert.Truef(t, ok, "n=%d i=%d: proof did not verify", n, i)
		}
	}
}

func TestVerifyProof_RejectsWrongRoot(t *testing.T) {
	ins := [][]byte{input(1), input(2), input(3), input(4)}
	tree, err := BuildTree(ins)
	require.NoError(t, err)
	proof, err := tree.GenerateProofByInput(ins[0])
	require.NoError(t, err)

	wrongRoot := HashData([]byte("not the root"))
	ok, err := VerifyProof(ins[0], proof, wrongRoot)
	require.NoError(t, err)
	assert.False(t, ok, "expected verification to fail against a wrong root")
}

func TestBuildTree_EmptyHasEmptyRoot(t *testing.T) {
	tree, err := BuildTree(nil)
	require.NoError(t, err)

	assert.Nil(t, tree.Root())
	assert.Empty(t, tree.RootHex())
	assert.Equal(t, 0, tree.LeafCount())
}

func TestBuildTree_RejectsShortInput(t *testing.T) {
	_, err := BuildTree([][]byte{{1, 2, 3}})
	assert.Error(t, err)
}
