// Package storage holds the pieces shared by every sink backend: the stored
// document shape, object key layout and a retrying decorator.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/search-indexer/internal/clock/system"
	"github.com/JakeFAU/search-indexer/internal/hash/sha256"
	"github.com/JakeFAU/search-indexer/internal/indexer"
)

// ContentType is the media type of encoded documents.
const ContentType = "application/json"

// Document is the persisted form of an accepted message.
type Document struct {
	ID       string    `json:"id"`
	StoredAt time.Time `json:"stored_at"`
	indexer.Message
}

// Encode returns the JSON encoding of d.
func (d Document) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	return data, nil
}

// Builder turns messages into documents.
type Builder struct {
	hasher indexer.Hasher
	clock  indexer.Clock
}

// NewBuilder creates a Builder. Nil arguments fall back to SHA-256 and the
// system clock.
func NewBuilder(hasher indexer.Hasher, clock indexer.Clock) *Builder {
	if hasher == nil {
		hasher = sha256.New()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Builder{hasher: hasher, clock: clock}
}

// Build stamps msg with its document ID and the current time.
func (b *Builder) Build(msg indexer.Message) (Document, error) {
	id, err := DocumentID(b.hasher, msg)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, StoredAt: b.clock.Now().UTC(), Message: msg}, nil
}

// DocumentID hashes the full encoded message. A redelivery of the same bytes
// maps to the same document; messages that differ in any field do not.
func DocumentID(hasher indexer.Hasher, msg indexer.Message) (string, error) {
	if hasher == nil {
		return "", errors.New("hasher is required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode document id input: %w", err)
	}
	id, err := hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash document id: %w", err)
	}
	return id, nil
}

// ObjectKey lays documents out as prefix/YYYY/MM/DD/<id>.json.
func ObjectKey(prefix string, doc Document) string {
	day := doc.StoredAt.UTC().Format("2006/01/02")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(day, doc.ID+".json")
	}
	return path.Join(prefix, day, doc.ID+".json")
}
