// Package merkle implements the content-addressed file index.
//
// Every file is fingerprinted with SHA-256. The fingerprints, ordered by
// path, are the leaves of a Merkle tree whose root summarizes the whole
// tree: two projects with the same files and contents have the same root,
// and changing any byte of any file changes it.
//
// # Change Detection
//
//	rec, changed, err := idx.IndexFile(ctx, "/project/src/app.js")
//	if !changed {
//	    // identical content, skip parsing and embedding
//	}
//
// # Root Computation
//
// The tree is rebuilt from the full leaf set on demand rather than patched:
//
//	root := idx.Recompute()   // nil for an empty index
//	same := idx.MerkleRoot()  // last computed root, not refreshed by mutations
//
// Internal nodes hash the concatenation of the two child digests. A level
// with an odd number of nodes pairs its last node with itself.
package merkle
