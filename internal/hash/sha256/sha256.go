// Package sha256 derives document identifiers with SHA-256.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

var _ indexer.Hasher = (*Hasher)(nil)

// Hasher implements indexer.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a lowercase hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
