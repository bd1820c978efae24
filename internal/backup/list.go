package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// List returns the absolute paths of all finished backups, sorted by name.
// In-flight temp files are skipped. A missing directory yields no backups.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Remove deletes one backup. Paths outside the backup directory are refused.
func (s *Store) Remove(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", p, err)
	}
	rel, err := filepath.Rel(s.dir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return fmt.Errorf("path %q is not a backup in %s", p, s.dir)
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReferenceSource reports which backup paths are still referenced by notes.
type ReferenceSource interface {
	BackupPaths(ctx context.Context) (map[string]struct{}, error)
}

// Orphan is a backup that no note references.
type Orphan struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Orphans lists backups that no note references. Backups created within
// minAge are left out so that ingestions still in progress are not
// reported.
func (s *Store) Orphans(ctx context.Context, refs ReferenceSource, minAge time.Duration) ([]Orphan, error) {
	referenced, err := refs.BackupPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading referenced backups: %w", err)
	}
	paths, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-minAge)
	var orphans []Orphan
	for _, p := range paths {
		if _, ok := referenced[p]; ok {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		created := createdAt(filepath.Base(p), info)
		if created.After(cutoff) {
			continue
		}
		orphans = append(orphans, Orphan{Path: p, Size: info.Size(), CreatedAt: created})
	}
	return orphans, nil
}

// createdAt reads the creation time from the timestamp prefix of a backup
// name. The file mtime is copied from the source, so it is only a fallback.
func createdAt(name string, info os.FileInfo) time.Time {
	if len(name) >= len(timestampLayout) {
		if t, err := time.Parse(timestampLayout, name[:len(timestampLayout)]); err == nil {
			return t
		}
	}
	return info.ModTime()
}
