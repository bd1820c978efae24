package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kalambet/mdnotes/internal/grammar"
	"github.com/kalambet/mdnotes/internal/notes"
	"github.com/kalambet/mdnotes/internal/objectstore"
	"github.com/kalambet/mdnotes/internal/storage"
)

type mockGrammar struct {
	checkFn func(ctx context.Context, id string) (grammar.Report, error)
}

func (m *mockGrammar) Check(ctx context.Context, id string) (grammar.Report, error) {
	return m.checkFn(ctx, id)
}

type env struct {
	store   *storage.Store
	objects *objectstore.Memory
	reader  *notes.Reader
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	objects := objectstore.NewMemory("notes", 0)
	return &env{
		store:   store,
		objects: objects,
		reader:  notes.NewReader(store, objects),
	}
}

// addNote stores content directly, bypassing the ingestion pipeline.
func (e *env) addNote(t *testing.T, content string) storage.Note {
	t.Helper()
	ctx := context.Background()
	key := objectstore.NewKey()
	url, err := e.objects.Upload(ctx, bytes.NewReader([]byte(content)), int64(len(content)), key)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	n, err := e.store.CreateNote(ctx, storage.NewNote{ObjectKey: key, PublicURL: url, BackupPath: "/backups/" + key})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
