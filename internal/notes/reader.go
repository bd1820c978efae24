// Package notes resolves a note id to its record and its markdown content.
package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/mdnotes/internal/apperr"
	"github.com/kalambet/mdnotes/internal/storage"
)

// RecordStore looks up note records.
type RecordStore interface {
	GetNote(ctx context.Context, id string) (storage.Note, error)
}

// ObjectGetter fetches object content by key.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Reader combines the record store and the object store.
type Reader struct {
	records RecordStore
	objects ObjectGetter
}

func NewReader(records RecordStore, objects ObjectGetter) *Reader {
	return &Reader{records: records, objects: objects}
}

// Note returns the record for id, or an apperr.NotFound error.
func (r *Reader) Note(ctx context.Context, id string) (storage.Note, error) {
	if id == "" {
		return storage.Note{}, apperr.E(apperr.NotFound, "note not found", nil)
	}
	n, err := r.records.GetNote(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Note{}, apperr.E(apperr.NotFound, "note not found", err)
	}
	if err != nil {
		return storage.Note{}, apperr.E(apperr.FetchFailed, fmt.Sprintf("loading note %s", id), err)
	}
	return n, nil
}

// Content returns the markdown text of note id. A note without an object
// key, or whose object is gone, is reported as NotFound.
func (r *Reader) Content(ctx context.Context, id string) (string, error) {
	n, err := r.Note(ctx, id)
	if err != nil {
		return "", err
	}
	if n.ObjectKey == "" {
		return "", apperr.E(apperr.NotFound, "note has no stored content", nil)
	}
	data, err := r.objects.Get(ctx, n.ObjectKey)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return "", apperr.E(apperr.NotFound, "note content not found", err)
		}
		return "", err
	}
	return string(data), nil
}
