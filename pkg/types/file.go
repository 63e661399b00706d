package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Digest is a SHA-256 content fingerprint
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding of the digest
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex encoded digest
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != len(d) {
		return d, hex.ErrLength
	}
	copy(d[:], b)
	return d, nil
}

// FileRecord is the indexed state of one file.
// A record is replaced wholesale whenever its content hash changes.
type FileRecord struct {
	Path         string // Relative to project root, slash separated
	ContentHash  Digest
	LastModified time.Time
	Content      string
}
