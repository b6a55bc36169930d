package crypto

import "github.com/Klingon-tech/cryptoken/pkg/types"

// MerkleRoot computes a binary merkle root over hashes.
// Returns a zero hash for empty input; a single hash is its own root.
// Odd levels duplicate their last element.
func MerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}
	if len(hashes) == 1 {
		return hashes[0]
	}

	// Work on a copy so we don't mutate the caller's slice.
	level := make([]types.Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = HashParts(level[i][:], level[i+1][:])
		}
		level = next
	}

	return level[0]
}
