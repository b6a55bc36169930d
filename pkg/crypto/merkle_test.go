package crypto

import (
	"testing"

	"github.com/Klingon-tech/cryptoken/pkg/types"
)

func TestMerkleRoot_Empty(t *testing.T) {
	if root := MerkleRoot(nil); !root.IsZero() {
		t.Errorf("empty input should return zero hash, got %s", root)
	}
}

func TestMerkleRoot_SingleHash(t *testing.T) {
	h := Hash([]byte("single"))
	if root := MerkleRoot([]types.Hash{h}); root != h {
		t.Errorf("single hash should return itself: got %s, want %s", root, h)
	}
}

func TestMerkleRoot_ThreeHashes(t *testing.T) {
	h1 := Hash([]byte("o1"))
	h2 := Hash([]byte("o2"))
	h3 := Hash([]byte("o3"))

	root := MerkleRoot([]types.Hash{h1, h2, h3})

	// With 3 hashes: h3 is duplicated -> [h1, h2, h3, h3]
	left := HashParts(h1[:], h2[:])
	right := HashParts(h3[:], h3[:])
	want := HashParts(left[:], right[:])

	if root != want {
		t.Errorf("three hashes: got %s, want %s", root, want)
	}
}

func TestMerkleRoot_DoesNotMutateInput(t *testing.T) {
	in := []types.Hash{Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))}
	orig := make([]types.Hash, len(in))
	copy(orig, in)

	MerkleRoot(in)
	for i := range in {
		if in[i] != orig[i] {
			t.Fatal("MerkleRoot mutated its input")
		}
	}
}

func TestMerkleRoot_OrderMatters(t *testing.T) {
	h1 := Hash([]byte("o1"))
	h2 := Hash([]byte("o2"))
	if MerkleRoot([]types.Hash{h1, h2}) == MerkleRoot([]types.Hash{h2, h1}) {
		t.Error("swapping leaves should change the root")
	}
}
