// Package ingest turns one uploaded markdown file into a local backup, an
// object store copy and a note record.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/mdnotes/internal/apperr"
	"github.com/kalambet/mdnotes/internal/backup"
	"github.com/kalambet/mdnotes/internal/objectstore"
	"github.com/kalambet/mdnotes/internal/storage"
)

const (
	StatusSuccess  = "success"
	MessageSuccess = "document saved successfully"
)

// BackupSaver writes the local backup copy.
type BackupSaver interface {
	Save(ctx context.Context, src, name string) (backup.Metadata, error)
}

// NoteCreator persists the note record.
type NoteCreator interface {
	CreateNote(ctx context.Context, n storage.NewNote) (storage.Note, error)
}

// Source is a staged upload. Name is the client's original file name and
// may be empty.
type Source struct {
	Path string
	Name string
}

// Result is returned to the client after a successful ingestion.
type Result struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
}

// Pipeline runs backup, upload and record creation in that order. It holds
// no per-call state and is safe for concurrent use.
type Pipeline struct {
	backups BackupSaver
	objects objectstore.Store
	notes   NoteCreator
	maxSize int64
	newKey  func() string
	logger  *slog.Logger
}

// New returns a Pipeline. maxSize <= 0 selects objectstore.DefaultMaxSize.
func New(backups BackupSaver, objects objectstore.Store, notes NoteCreator, maxSize int64) *Pipeline {
	if maxSize <= 0 {
		maxSize = objectstore.DefaultMaxSize
	}
	return &Pipeline{
		backups: backups,
		objects: objects,
		notes:   notes,
		maxSize: maxSize,
		newKey:  objectstore.NewKey,
		logger:  slog.Default(),
	}
}

// Ingest processes src. A failure at any step is returned unchanged and
// nothing created by earlier steps is rolled back; such leftovers are
// logged so an operator can reconcile them.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (Result, error) {
	size, err := p.validate(src.Path)
	if err != nil {
		return Result{}, err
	}

	meta, err := p.backups.Save(ctx, src.Path, src.Name)
	if err != nil {
		return Result{}, err
	}

	key := p.newKey()
	url, err := p.upload(ctx, src.Path, size, key)
	if err != nil {
		p.logger.Warn("orphaned backup", "backup_path", meta.BackupPath, "object_key", key, "error", err)
		return Result{}, err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Result{}, apperr.E(apperr.PersistenceError, "encoding backup metadata", err)
	}

	note, err := p.notes.CreateNote(ctx, storage.NewNote{
		ObjectKey:      key,
		PublicURL:      url,
		BackupPath:     meta.BackupPath,
		BackupMetadata: string(metaJSON),
	})
	if err != nil {
		p.logger.Warn("orphaned artifacts", "backup_path", meta.BackupPath, "object_key", key, "error", err)
		return Result{}, err
	}

	p.logger.Info("note ingested", "note_id", note.ID, "object_key", key, "backup_path", meta.BackupPath, "size", size)
	return Result{
		Status:     StatusSuccess,
		DocumentID: note.ID,
		Message:    MessageSuccess,
	}, nil
}

// validate checks the staged file before anything is written, so a
// rejected upload leaves no artifacts.
func (p *Pipeline) validate(path string) (int64, error) {
	if path == "" {
		return 0, apperr.E(apperr.InvalidInput, "note path is empty", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, apperr.E(apperr.InvalidInput, fmt.Sprintf("file not found: %s", path), err)
	}
	if !info.Mode().IsRegular() {
		return 0, apperr.E(apperr.InvalidInput, fmt.Sprintf("not a regular file: %s", path), nil)
	}
	if info.Size() == 0 {
		return 0, apperr.E(apperr.InvalidInput, "file is empty", nil)
	}
	if info.Size() > p.maxSize {
		return 0, apperr.E(apperr.InvalidInput, fmt.Sprintf("file size exceeds maximum allowed size of %d bytes", p.maxSize), nil)
	}
	return info.Size(), nil
}

func (p *Pipeline) upload(ctx context.Context, path string, size int64, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.E(apperr.UploadFailed, "opening file for upload", err)
	}
	defer f.Close()
	return p.objects.Upload(ctx, f, size, key)
}
