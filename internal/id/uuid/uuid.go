// Package uuid generates delivery IDs for transports that do not provide one.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

var _ indexer.IDGenerator = Generator{}

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
