// Package sha256 names stored artifacts by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/vinematch/vinematch/internal/wescrape"
)

var _ wescrape.Hasher = Hasher{}

// Hasher returns hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() Hasher {
	return Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
