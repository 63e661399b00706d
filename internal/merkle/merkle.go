package merkle

import (
	"crypto/sha256"
	"sort"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Node is a node of a Merkle tree. Leaves have no children.
type Node struct {
	Hash  types.Digest
	Left  *Node
	Right *Node
}

// IsLeaf reports whether the node has no children
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// Hash computes the SHA-256 digest of content
func Hash(content []byte) types.Digest {
	return sha256.Sum256(content)
}

// HashPair computes the digest of an internal node from its children
func HashPair(left, right types.Digest) types.Digest {
	var buf [2 * sha256.Size]byte
	copy(buf[:sha256.Size], left[:])
	copy(buf[sha256.Size:], right[:])
	return sha256.Sum256(buf[:])
}

// BuildRoot builds a Merkle tree over the leaf digests in the given order.
// Adjacent digests are paired, the last one is duplicated when a level has
// an odd count, and the process repeats until one node remains.
// It returns nil for an empty input.
func BuildRoot(leaves []types.Digest) *Node {
	if len(leaves) == 0 {
		return nil
	}

	level := make([]*Node, len(leaves))
	for i, leaf := range leaves {
		level[i] = &Node{Hash: leaf}
	}

	for len(level) > 1 {
		next := make([]*Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, &Node{
				Hash:  HashPair(left.Hash, right.Hash),
				Left:  left,
				Right: right,
			})
		}
		level = next
	}

	return level[0]
}

// BuildRootFromRecords orders records by path and builds the tree over their content hashes
func BuildRootFromRecords(records []types.FileRecord) *Node {
	sorted := make([]types.FileRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	leaves := make([]types.Digest, len(sorted))
	for i, rec := range sorted {
		leaves[i] = rec.ContentHash
	}
	return BuildRoot(leaves)
}
