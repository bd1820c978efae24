// Package backup keeps a local copy of every uploaded note.
//
// Backups are written to a temporary file in the backup directory and then
// renamed into place, so a reader never observes a partially written backup.
// The temporary file must live in the same directory as the final file for
// the rename to be atomic.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mdnotes/internal/apperr"
)

const (
	defaultContentType = "application/octet-stream"
	timestampLayout    = "20060102T150405"
)

// Metadata describes a finished backup. It is stored serialized alongside
// each note record.
type Metadata struct {
	BackupPath   string `json:"backup_path"`
	OriginalName string `json:"original_name"`
	ObjectName   string `json:"object_name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
}

// Store writes backups into a single directory.
type Store struct {
	dir    string
	now    func() time.Time
	suffix func() string
	logger *slog.Logger
}

// New returns a Store rooted at dir. The directory is created on first use.
func New(dir string) *Store {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Store{
		dir:    dir,
		now:    time.Now,
		suffix: randomSuffix,
		logger: slog.Default(),
	}
}

// Dir returns the absolute backup directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save copies the file at src into the backup directory under a generated
// name of the form <timestamp>-<8 hex>-<name>. name is the client's original
// file name; when empty the base name of src is used.
func (s *Store) Save(ctx context.Context, src, name string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, apperr.E(apperr.BackupFailed, "backup cancelled", err)
	}
	if src == "" {
		return Metadata{}, apperr.E(apperr.InvalidInput, "note path is empty", nil)
	}
	info, err := os.Stat(src)
	if err != nil {
		return Metadata{}, apperr.E(apperr.InvalidInput, fmt.Sprintf("file not found: %s", src), err)
	}
	if !info.Mode().IsRegular() {
		return Metadata{}, apperr.E(apperr.InvalidInput, fmt.Sprintf("not a regular file: %s", src), nil)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return Metadata{}, apperr.E(apperr.StorageUnavailable, fmt.Sprintf("unable to create backup directory %q", s.dir), err)
	}

	base := cleanName(name)
	if base == "" {
		base = filepath.Base(src)
	}
	objectName := fmt.Sprintf("%s-%s-%s", s.now().UTC().Format(timestampLayout), s.suffix(), base)
	finalPath := filepath.Join(s.dir, objectName)

	if err := s.writeAtomic(src, finalPath, objectName, info); err != nil {
		return Metadata{}, apperr.E(apperr.BackupFailed, "failed to save backup file", err)
	}

	size := info.Size()
	if fi, err := os.Stat(finalPath); err == nil {
		size = fi.Size()
	}

	return Metadata{
		BackupPath:   finalPath,
		OriginalName: base,
		ObjectName:   objectName,
		Size:         size,
		ContentType:  contentType(finalPath),
	}, nil
}

// writeAtomic streams src into a hidden temp file next to dest, then renames
// it over dest. The temp file is removed on every failure path.
func (s *Store) writeAtomic(src, dest, objectName string, info os.FileInfo) (err error) {
	tmp, err := os.CreateTemp(s.dir, "."+objectName+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	_, err = io.Copy(tmp, in)
	in.Close()
	if err != nil {
		return fmt.Errorf("copying content: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Mode and mtime are best-effort; a backup without them is still valid.
	if cerr := os.Chmod(tmpPath, info.Mode().Perm()); cerr != nil {
		s.logger.Debug("backup: copying mode failed", "path", tmpPath, "error", cerr)
	}
	if cerr := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); cerr != nil {
		s.logger.Debug("backup: copying mtime failed", "path", tmpPath, "error", cerr)
	}

	if err = os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming to %q: %w", dest, err)
	}
	return nil
}

// cleanName reduces a client supplied file name to its last path element.
func cleanName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return defaultContentType
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
