// Package store persists the medication document.
//
// The document is always read and written whole. FileStore writes through a
// temporary file and a rename, so a failed save leaves the previous document
// in place, and restricts the file to its owner.
package store

import (
	"context"
	"errors"

	"github.com/stellarlinkco/pharm/internal/medication"
)

// ErrNoDocument is returned by Load when nothing has been saved yet.
var ErrNoDocument = errors.New("document does not exist")

// Store loads and saves the full medication document.
type Store interface {
	Load(ctx context.Context) (*medication.Document, error)
	Save(ctx context.Context, doc *medication.Document) error
}

// LoadOrEmpty loads the document, treating a missing one as empty.
func LoadOrEmpty(ctx context.Context, s Store) (*medication.Document, error) {
	doc, err := s.Load(ctx)
	if errors.Is(err, ErrNoDocument) {
		return medication.NewDocument(), nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
