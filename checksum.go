package filemanager

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ChecksumAlgorithm names the digest reported for stored content.
const ChecksumAlgorithm = "xxhash"

// NewHasher returns the hash used for upload checksums.
func NewHasher() hash.Hash {
	return xxhash.New()
}

// CalculateChecksum reads r to the end and returns the hex-encoded xxhash
// digest of its content.
func CalculateChecksum(r io.Reader) (string, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HexSum returns the hex-encoded digest accumulated in h.
func HexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
